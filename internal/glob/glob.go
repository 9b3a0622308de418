// Package glob implements byte-key pattern matching for the storage
// engine's supplemented Keys(pattern) operation. path.Match and
// filepath.Match both treat '/' as a path separator they refuse to match
// against '*', which is wrong for arbitrary binary keys that may contain
// any byte including '/' — so this is a small, deliberately
// standard-library-only routine rather than a borrowed path-matching
// library; see DESIGN.md for the justification.
package glob

// Match reports whether name matches pattern, where pattern may contain:
//
//	'*'  matches any run of bytes (including none)
//	'?'  matches exactly one byte
//	'[...]' matches one byte from the enclosed set, '^' negates
//
// There is no special treatment of any byte value, including '/'.
func Match(pattern, name string) bool {
	return match([]byte(pattern), []byte(name))
}

func match(pat, name []byte) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '*':
			// Collapse consecutive '*'.
			for len(pat) > 0 && pat[0] == '*' {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if match(pat, name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pat = pat[1:]
			name = name[1:]
		case '[':
			if len(name) == 0 {
				return false
			}
			end := indexByte(pat, ']')
			if end == -1 {
				// Unterminated class: treat '[' literally.
				if name[0] != '[' {
					return false
				}
				pat = pat[1:]
				name = name[1:]
				continue
			}
			class := pat[1:end]
			negate := false
			if len(class) > 0 && class[0] == '^' {
				negate = true
				class = class[1:]
			}
			if classMatches(class, name[0]) == negate {
				return false
			}
			pat = pat[end+1:]
			name = name[1:]
		default:
			if len(name) == 0 || name[0] != pat[0] {
				return false
			}
			pat = pat[1:]
			name = name[1:]
		}
	}
	return len(name) == 0
}

func classMatches(class []byte, b byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= b && b <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == b {
			return true
		}
	}
	return false
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
