package audio

// EnergyVAD flags speech when frame energy crosses Threshold and keeps the
// flag raised for Hangover frames after energy drops.
type EnergyVAD struct {
	Threshold float64
	Hangover  int

	// MinSpeechFrames consecutive loud frames are required before speech is
	// reported, which filters clicks.
	MinSpeechFrames int

	loud    int
	trailer int
	active  bool
}

func NewEnergyVAD(threshold float64) *EnergyVAD {
	if threshold <= 0 {
		threshold = 0.04
	}
	return &EnergyVAD{Threshold: threshold, Hangover: 8, MinSpeechFrames: 2}
}

// Process returns the speech verdict for one frame.
func (v *EnergyVAD) Process(rms float64) bool {
	if rms >= v.Threshold {
		v.loud++
		min := v.MinSpeechFrames
		if min <= 0 {
			min = 1
		}
		if v.loud >= min {
			v.active = true
			v.trailer = v.Hangover
		}
		return v.active
	}
	v.loud = 0
	if v.active {
		if v.trailer > 0 {
			v.trailer--
			return true
		}
		v.active = false
	}
	return false
}

func (v *EnergyVAD) Reset() {
	v.loud = 0
	v.trailer = 0
	v.active = false
}
