package bmp

import "io"

// Detection is the outcome of probing both color plane positions.
type Detection struct {
	Variant    Variant
	CorePlanes uint16
	InfoPlanes uint16
	// Ambiguous is set when both probes read 1. Variant is then Info.
	Ambiguous bool
}

// Decide applies the plane-count heuristic. The Info probe is evaluated last
// and wins when both read 1.
func Decide(corePlanes, infoPlanes uint16) Detection {
	d := Detection{Variant: VariantUnknown, CorePlanes: corePlanes, InfoPlanes: infoPlanes}
	if corePlanes == 1 {
		d.Variant = VariantCore
	}
	if infoPlanes == 1 {
		d.Variant = VariantInfo
	}
	d.Ambiguous = corePlanes == 1 && infoPlanes == 1
	return d
}

// Detect reads the plane count at 0x16 and 0x1A and guesses the header variant.
func Detect(r io.ReaderAt) (Detection, error) {
	core, err := ReadUint16(r, CoreProbeOffset)
	if err != nil {
		return Detection{}, err
	}
	info, err := ReadUint16(r, InfoProbeOffset)
	if err != nil {
		return Detection{}, err
	}
	return Decide(core, info), nil
}
