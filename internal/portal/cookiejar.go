package portal

import "strings"

// Jar is a minimal cookie store scoped to one login session. It keeps only
// name/value pairs: attributes, paths and expiry are irrelevant for the short
// lived SSO exchange and are dropped at parse time.
type Jar struct {
	cookies map[string]string
}

// NewJar returns an empty cookie jar.
func NewJar() *Jar {
	return &Jar{cookies: make(map[string]string)}
}

// Append parses one Set-Cookie line up to the first ';' and stores the
// name/value pair, overwriting any previous value for the same name.
// Lines without '=' are ignored.
func (j *Jar) Append(raw string) {
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	j.cookies[name] = strings.TrimSpace(value)
}

// HeaderValue builds the outgoing Cookie header. The second return is false
// when the jar is empty. Pair order is unspecified.
func (j *Jar) HeaderValue() (string, bool) {
	if len(j.cookies) == 0 {
		return "", false
	}
	var b strings.Builder
	first := true
	for name, value := range j.cookies {
		if !first {
			b.WriteByte(';')
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String(), true
}

// Clear empties the jar. Called before re-authenticating so a stale session
// cookie cannot leak into a fresh login.
func (j *Jar) Clear() {
	clear(j.cookies)
}

// Len reports the number of stored cookies.
func (j *Jar) Len() int {
	return len(j.cookies)
}
