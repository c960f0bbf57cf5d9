package control

// Sink is the rendering surface parameter values are dispatched to.
type Sink interface {
	SetGlobalScale(v float64)
	SetRotationSpeed(v float64)
	SetColorIntensity(v float64)
	SetEmissionIntensity(v float64)
	SetPositionOffset(v float64)
	SetHeightScale(v float64)
	SetHueRotation(v float64)
	SetBrightness(v float64)
	SetComplexity(v float64)
	SetParticleSize(v float64)
	SetOpacity(v float64)
	SetAnimationSpeed(v float64)
	SetParticleCount(v float64)
}

var dispatchTable = map[Parameter]func(Sink, float64){
	GlobalScale:       Sink.SetGlobalScale,
	RotationSpeed:     Sink.SetRotationSpeed,
	ColorIntensity:    Sink.SetColorIntensity,
	EmissionIntensity: Sink.SetEmissionIntensity,
	PositionOffset:    Sink.SetPositionOffset,
	HeightScale:       Sink.SetHeightScale,
	HueRotation:       Sink.SetHueRotation,
	Brightness:        Sink.SetBrightness,
	Complexity:        Sink.SetComplexity,
	ParticleSize:      Sink.SetParticleSize,
	Opacity:           Sink.SetOpacity,
	AnimationSpeed:    Sink.SetAnimationSpeed,
	ParticleCount:     Sink.SetParticleCount,
}

// SinkFunc adapts a single callback to Sink.
type SinkFunc func(p Parameter, v float64)

func (f SinkFunc) SetGlobalScale(v float64)       { f(GlobalScale, v) }
func (f SinkFunc) SetRotationSpeed(v float64)     { f(RotationSpeed, v) }
func (f SinkFunc) SetColorIntensity(v float64)    { f(ColorIntensity, v) }
func (f SinkFunc) SetEmissionIntensity(v float64) { f(EmissionIntensity, v) }
func (f SinkFunc) SetPositionOffset(v float64)    { f(PositionOffset, v) }
func (f SinkFunc) SetHeightScale(v float64)       { f(HeightScale, v) }
func (f SinkFunc) SetHueRotation(v float64)       { f(HueRotation, v) }
func (f SinkFunc) SetBrightness(v float64)        { f(Brightness, v) }
func (f SinkFunc) SetComplexity(v float64)        { f(Complexity, v) }
func (f SinkFunc) SetParticleSize(v float64)      { f(ParticleSize, v) }
func (f SinkFunc) SetOpacity(v float64)           { f(Opacity, v) }
func (f SinkFunc) SetAnimationSpeed(v float64)    { f(AnimationSpeed, v) }
func (f SinkFunc) SetParticleCount(v float64)     { f(ParticleCount, v) }
