package domain

// Principal is the caller of the signing API, identified by a hash of its credential.
type Principal struct {
	Subject string
}
