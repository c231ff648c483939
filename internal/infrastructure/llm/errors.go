package llm

import "errors"

// errUnavailable is returned when a provider's underlying SDK client
// failed to initialize (e.g. missing API key) so Chat fails fast rather
// than nil-pointer-dereferencing into the SDK.
var errUnavailable = errors.New("provider client unavailable")
