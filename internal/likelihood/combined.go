package likelihood

import (
	"context"
	"fmt"
	"math"

	"xelimit/domain/core"
	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
	"xelimit/internal"
	"xelimit/ports"
)

// normTolerance is the relative difference allowed between member signal
// default normalizations.
const normTolerance = 1e-9

// Combined sums the log-likelihoods of several models, typically detector
// volumes or run periods. Parameters with the same name are one parameter:
// the POI always, systematics and safeguards when their names match. The
// others stay specific to their member.
//
// Like Model, it is not safe for concurrent use.
type Combined struct {
	Name string

	members   []*Model
	poi       *nuisance.Parameter
	params    *nuisance.Set
	maximizer ports.Maximizer

	initialized bool
	log         *internal.Logger
}

// NewCombined creates an empty combination fitted with maximizer.
func NewCombined(name string, maximizer ports.Maximizer) *Combined {
	return &Combined{
		Name:      name,
		maximizer: maximizer,
		log:       internal.DefaultLogger.With("combined " + name),
	}
}

// Add registers a member. Member names must be unique.
func (c *Combined) Add(m *Model) error {
	for _, o := range c.members {
		if o == m || o.Name == m.Name {
			return fmt.Errorf("%w: member %s", core.ErrDuplicateComponent, m.Name)
		}
	}
	c.members = append(c.members, m)
	c.initialized = false
	return nil
}

func (c *Combined) Members() []*Model { return c.members }

// Initialize initializes every member, aligns their signal multipliers and
// merges their parameters by name.
func (c *Combined) Initialize() error {
	c.initialized = false
	if len(c.members) == 0 {
		return fmt.Errorf("combined %s: %w", c.Name, core.ErrNoMembers)
	}

	norm := 0.0
	mult := math.Inf(1)
	for i, m := range c.members {
		if err := m.Initialize(); err != nil {
			return fmt.Errorf("combined %s: %w", c.Name, err)
		}
		if i == 0 {
			norm = m.signalDefaultNorm
		} else if math.Abs(m.signalDefaultNorm-norm) > normTolerance*norm {
			return fmt.Errorf("combined %s: %w: member %s signal norm %g, expected %g",
				c.Name, core.ErrInconsistentCombination, m.Name, m.signalDefaultNorm, norm)
		}
		mult = math.Min(mult, m.signalMultiplier)
	}
	// μ counts signal events of the member with the largest signal
	// expectation; every member converts with the same multiplier.
	for _, m := range c.members {
		m.signalMultiplier = mult
	}

	if err := c.mergeParameters(); err != nil {
		return fmt.Errorf("combined %s: %w", c.Name, err)
	}
	c.initialized = true
	c.log.Debug("initialized %d members with %d parameters, signal multiplier %.6g",
		len(c.members), c.params.Len(), mult)
	return nil
}

// mergeParameters keeps the first parameter of each name and points later
// members at it.
func (c *Combined) mergeParameters() error {
	set := nuisance.NewSet()
	for _, m := range c.members {
		for _, p := range m.params.All() {
			canon, err := set.Get(p.Name)
			if err != nil {
				if err := set.Add(p); err != nil {
					return err
				}
				continue
			}
			if canon == p {
				continue
			}
			if err := compatible(canon, p); err != nil {
				return fmt.Errorf("member %s: %w", m.Name, err)
			}
			m.replaceParameter(canon)
		}
		if err := m.assembleParameters(); err != nil {
			return fmt.Errorf("member %s: %w", m.Name, err)
		}
	}
	c.poi = c.members[0].poi
	c.params = set
	return nil
}

func compatible(a, b *nuisance.Parameter) error {
	if a.Kind != b.Kind || a.Min != b.Min || a.Max != b.Max ||
		a.Initial != b.Initial || a.Step != b.Step || a.Measured != b.Measured {
		return fmt.Errorf("%w: parameter %s differs between members (%s [%g, %g] vs %s [%g, %g])",
			core.ErrInconsistentCombination, a.Name, a.Kind, a.Min, a.Max, b.Kind, b.Min, b.Max)
	}
	return nil
}

func (c *Combined) ready() error {
	if !c.initialized {
		return fmt.Errorf("combined %s: %w", c.Name, core.ErrNotInitialized)
	}
	return nil
}

// Label names the combination in logs and errors.
func (c *Combined) Label() string { return c.Name }

func (c *Combined) POI() *nuisance.Parameter { return c.poi }

// Parameters is the merged set; shared parameters appear once.
func (c *Combined) Parameters() *nuisance.Set { return c.params }

// SignalMultiplier is the multiplier shared by all members.
func (c *Combined) SignalMultiplier() float64 {
	if len(c.members) == 0 {
		return 0
	}
	return c.members[0].signalMultiplier
}

// CrossSection converts a signal strength to cross-section units.
func (c *Combined) CrossSection(mu float64) float64 {
	if len(c.members) == 0 {
		return 0
	}
	return c.members[0].CrossSection(mu)
}

// LogLikelihood is the sum of the members' data terms plus one constraint
// per merged parameter. Any member at VerySmall makes the sum VerySmall.
func (c *Combined) LogLikelihood() (float64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if c.params.HasNaN() {
		c.log.Trace("NaN parameter value, returning sentinel")
		return VerySmall, nil
	}
	sum := 0.0
	for _, m := range c.members {
		ll, err := m.dataLogLikelihood()
		if err != nil {
			return VerySmall, fmt.Errorf("combined %s: %w", c.Name, err)
		}
		if ll == VerySmall {
			return VerySmall, nil
		}
		sum += ll
	}
	return sum + c.params.LogConstraint(), nil
}

// FitParameters returns the merged parameters a fit moves.
func (c *Combined) FitParameters(freezePOI bool) []*nuisance.Parameter {
	return fittedParameters(c.params, c.poi, freezePOI)
}

// Maximize fits all members at once and leaves the parameters at the optimum.
func (c *Combined) Maximize(ctx context.Context, freezePOI bool) (float64, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return maximize(ctx, c.maximizer, c.FitParameters(freezePOI), c.LogLikelihood, c.Name, c.log)
}

// Datasets returns the member data samples in member order.
func (c *Combined) Datasets() []*sample.DataSample {
	out := make([]*sample.DataSample, len(c.members))
	for i, m := range c.members {
		out[i] = m.data
	}
	return out
}

// SetDatasets sets one data sample per member, in member order.
func (c *Combined) SetDatasets(data []*sample.DataSample) error {
	if len(data) != len(c.members) {
		return fmt.Errorf("combined %s: %w: expected %d datasets, got %d",
			c.Name, core.ErrConfiguration, len(c.members), len(data))
	}
	for i, m := range c.members {
		m.data = data[i]
	}
	return nil
}

// AsimovDatasets generates every member's Asimov sample at signal strength mu.
func (c *Combined) AsimovDatasets(mu float64) ([]*sample.DataSample, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	out := make([]*sample.DataSample, len(c.members))
	for i, m := range c.members {
		d, err := m.GenerateAsimov(mu)
		if err != nil {
			return nil, fmt.Errorf("combined %s: %w", c.Name, err)
		}
		out[i] = d
	}
	return out, nil
}
