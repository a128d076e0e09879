package utils

// Value dereferences v, yielding the zero value for a nil pointer.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to v. Handy for building partial update payloads.
func Ptr[T any](v T) *T {
	return &v
}
