package session

// PrimeSequence returns the input written to a fresh shell so that it
// prints a prompt and a banner before the client types anything.
func PrimeSequence(goos string) []byte {
	if goos == "windows" {
		return []byte("echo CONNECTED\r\n")
	}
	return []byte("printf '\\r'\necho 'CONNECTED' && uname -a && printf '\\r'\n")
}
