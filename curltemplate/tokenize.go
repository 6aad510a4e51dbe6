// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package curltemplate parses a cURL command line into a reusable
// RequestTemplate that virtual users replay against a target host.
//
// The Go standard library has no POSIX shell word-splitter and neither does
// our dependency set, so the tokenizer below is hand rolled, covering the
// quoting forms cURL command lines actually use.
package curltemplate

import (
	"fmt"
	"strings"
)

// tokenize splits s the way a POSIX shell would: unquoted whitespace
// separates words, single quotes suppress all escaping, double quotes allow
// backslash-escaping of \, $, ", ` and newline, and a bare backslash outside
// quotes escapes the next rune.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	runes := []rune(s)
	i := 0
	n := len(runes)

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for i < n {
		c := runes[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
			i++
		case c == '\'':
			inToken = true
			i++
			for {
				if i >= n {
					return nil, fmt.Errorf("curltemplate: unterminated single quote")
				}
				if runes[i] == '\'' {
					i++
					break
				}
				cur.WriteRune(runes[i])
				i++
			}
		case c == '"':
			inToken = true
			i++
			for {
				if i >= n {
					return nil, fmt.Errorf("curltemplate: unterminated double quote")
				}
				if runes[i] == '"' {
					i++
					break
				}
				if runes[i] == '\\' && i+1 < n && strings.ContainsRune(`\$"`+"`\n", runes[i+1]) {
					cur.WriteRune(runes[i+1])
					i += 2
					continue
				}
				cur.WriteRune(runes[i])
				i++
			}
		case c == '\\':
			if i+1 < n && runes[i+1] == '\n' {
				// backslash-newline continuation, treated as a word break
				flush()
				i += 2
				continue
			}
			inToken = true
			i++
			if i >= n {
				return nil, fmt.Errorf("curltemplate: trailing backslash")
			}
			cur.WriteRune(runes[i])
			i++
		default:
			inToken = true
			cur.WriteRune(c)
			i++
		}
	}
	flush()
	return tokens, nil
}
