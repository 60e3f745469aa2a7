package mailroute

import "regexp"

// Discriminator decides from a View whether an envelope applies to the raw
// input. Discriminators are evaluated before any unwrapping, so they should
// stay cheap.
type Discriminator interface {
	Match(v View) bool
}

// DiscriminatorFunc is a function adapter for Discriminator.
type DiscriminatorFunc func(v View) bool

// Match implements the Discriminator interface.
func (f DiscriminatorFunc) Match(v View) bool { return f(v) }

// HasFields matches when every path exists.
func HasFields(paths ...string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range paths {
			if !v.HasField(p) {
				return false
			}
		}
		return true
	})
}

// FieldEquals matches when path holds exactly the string value.
func FieldEquals(path, value string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.GetString(path)
		return ok && s == value
	})
}

// FieldMatches matches when path holds a string matched by re.
func FieldMatches(path string, re *regexp.Regexp) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.GetString(path)
		return ok && re.MatchString(s)
	})
}

// Within matches when path holds an embedded document matched by d. It lets
// a discriminator look inside an SNS Message without unwrapping it.
func Within(path string, d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		inner, ok := v.Embedded(path)
		return ok && d.Match(inner)
	})
}

// And matches when all discriminators match.
func And(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if !d.Match(v) {
				return false
			}
		}
		return true
	})
}

// Or matches when any discriminator matches.
func Or(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if d.Match(v) {
				return true
			}
		}
		return false
	})
}

// Not inverts a discriminator.
func Not(d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool { return !d.Match(v) })
}
