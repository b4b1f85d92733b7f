package config

import _ "embed"

// Default holds the embedded baseline conf.yaml. It is always parsed first so
// a deployment only needs to override the keys it cares about.
//
//go:embed conf.yaml
var Default []byte
