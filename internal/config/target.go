package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/dgnsrekt/chatsnap/internal/capture"
	"gopkg.in/yaml.v3"
)

// DefaultAspect is the editor's default phone aspect ratio.
const DefaultAspect = "19:9"

// PhoneHeights maps the editor's aspect ratio presets to the phone frame
// height in CSS pixels. The frame is always 375px wide.
var PhoneHeights = map[string]float64{
	"16:9":   667,
	"19:9":   812,
	"19.5:9": 844,
	"21:9":   875,
}

// PhoneWidth is the fixed phone frame width in CSS pixels.
const PhoneWidth = 375

// TargetProfile describes the page being captured: where the capture target
// lives in the DOM, how the offscreen clone is corrected, and which phone
// preset the editor is set to.
type TargetProfile struct {
	Target capture.Target     `yaml:"target"`
	Clone  capture.CloneStyle `yaml:"clone"`
	Aspect string             `yaml:"aspect"`
}

// DefaultTargetProfile matches the chat mock editor out of the box.
func DefaultTargetProfile() TargetProfile {
	return TargetProfile{
		Target: capture.DefaultTarget(),
		Clone:  capture.DefaultCloneStyle(),
		Aspect: DefaultAspect,
	}
}

// LoadTargetProfile reads a YAML profile. Missing fields keep their defaults
// and a missing file yields the default profile.
func LoadTargetProfile(path string) (TargetProfile, error) {
	p := DefaultTargetProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, fmt.Errorf("target profile: %w", err)
	}
	// Clone keys come from the target selectors unless set explicitly.
	p.Clone = capture.CloneStyle{}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("target profile: %w", err)
	}
	p.Target = p.Target.WithDefaults()
	if p.Clone, err = p.Clone.ForTarget(p.Target); err != nil {
		return p, fmt.Errorf("target profile: %w", err)
	}
	if p.Aspect == "" {
		p.Aspect = DefaultAspect
	}
	if _, ok := PhoneHeights[p.Aspect]; !ok {
		return p, fmt.Errorf("target profile: unknown aspect %q (known: %v)", p.Aspect, Aspects())
	}
	return p, nil
}

// ExpectedBox is the phone frame size for the profile's aspect preset.
func (p TargetProfile) ExpectedBox() capture.Box {
	h, ok := PhoneHeights[p.Aspect]
	if !ok {
		h = PhoneHeights[DefaultAspect]
	}
	return capture.Box{Width: PhoneWidth, Height: h}
}

// MatchesBox reports whether a measured box is the expected preset, allowing
// one pixel of rounding.
func (p TargetProfile) MatchesBox(b capture.Box) bool {
	want := p.ExpectedBox()
	return math.Abs(b.Width-want.Width) <= 1 && math.Abs(b.Height-want.Height) <= 1
}

// Aspects lists the known presets in a stable order.
func Aspects() []string {
	out := make([]string, 0, len(PhoneHeights))
	for k := range PhoneHeights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
