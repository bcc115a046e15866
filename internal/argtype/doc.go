// Package argtype maps argument type tags (string, integer, binary, ...) to
// the codecs that turn typed values into the opaque bytes carried by an
// agent argument and back. The default registry is populated once and sealed
// before any settings are built, so every producer and consumer in a process
// agrees on the same tag vocabulary.
package argtype
