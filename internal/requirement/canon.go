package requirement

import "bytes"

// CanonPackageName returns the canonical form of a PyPI package name per
// PEP 503 (https://peps.python.org/pep-0503/#normalized-names): runs of
// "-", "_", "." are collapsed to a single "-" and the result is
// lowercased.
func CanonPackageName(name string) string {
	var out bytes.Buffer
	run := false
	for i := 0; i < len(name); i++ {
		switch c := name[i]; {
		case 'a' <= c && c <= 'z', '0' <= c && c <= '9':
			out.WriteByte(c)
			run = false
		case 'A' <= c && c <= 'Z':
			out.WriteByte(c + ('a' - 'A'))
			run = false
		case c == '-' || c == '_' || c == '.':
			if !run {
				out.WriteByte('-')
			}
			run = true
		default:
			run = false
		}
	}
	return out.String()
}
