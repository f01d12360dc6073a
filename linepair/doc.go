/*Package linepair decodes frames from dual-half readout sensors.

At high pixel clocks the sensor reads two half-frames at once: one fills the
image from the top row downward, the other from the bottom row upward.  The
link carries their lines pre-paired, top-half line first, so line 2y of the
wire stream belongs in row y and line 2y+1 belongs in row height-1-y.

Each line is carried in one of a small, closed set of wire formats:

	Direct16  one little-endian 16-bit word per pixel
	Packed12  eight 12-bit pixels scrambled across three little-endian 32-bit words
	SqrtLUT   square-root companded variant; named so configuration can refer
	          to it, but it cannot be decoded

Decoding is allocation free and writes into a caller-owned buffer.  Inputs are
validated in full before the first row is written, so a failed Decode leaves
the output untouched.
*/
package linepair
