package detect

import _ "embed"

// defaultCascade is pigo's frontal face cascade, used when no cascade path
// is configured. See cascade/LICENSE.
//
//go:embed cascade/facefinder
var defaultCascade []byte
