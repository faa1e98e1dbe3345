package denormalizer

import (
	"strconv"
	"strings"
)

// Path locates a value in the response: response names and list indexes.
type Path []PathElement

type PathElement any

func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	var sb strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(v)
		case int:
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(v))
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}
