package similarity

import "strings"

// soundexCodes maps consonants to their Soundex digit. Vowels plus h, w, y
// are absent and act as separators.
var soundexCodes = map[rune]byte{
	'b': '1', 'f': '1', 'p': '1', 'v': '1',
	'c': '2', 'g': '2', 'j': '2', 'k': '2', 'q': '2', 's': '2', 'x': '2', 'z': '2',
	'd': '3', 't': '3',
	'l': '4',
	'm': '5', 'n': '5',
	'r': '6',
}

// Soundex computes the four-character American Soundex code for a word.
// It is used as a cheap phonetic blocking key: names that sound alike
// ("Smith", "Smyth") map to the same code. Non-letter input yields "".
func Soundex(word string) string {
	var letters []rune
	for _, r := range strings.ToLower(word) {
		if r >= 'a' && r <= 'z' {
			letters = append(letters, r)
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := make([]byte, 0, 4)
	code = append(code, byte(letters[0]-'a'+'A'))

	prev := soundexCodes[letters[0]]
	for _, r := range letters[1:] {
		digit, ok := soundexCodes[r]
		switch {
		case !ok && (r == 'h' || r == 'w'):
			// h and w do not reset the previous code.
			continue
		case !ok:
			prev = 0
			continue
		case digit != prev:
			code = append(code, digit)
			prev = digit
		default:
			// Adjacent letters with the same code collapse to one digit.
		}
		if len(code) == 4 {
			break
		}
	}

	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
