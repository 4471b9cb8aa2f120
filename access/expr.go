/*
Copyright (c) The handover-core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package access

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// ExprHelp documents what operators can do when overriding the stability
// and heading-bonus tunables with formulas instead of literals (spec.md §9:
// "implementers should treat these as tunable constants and surface them
// in configuration rather than hard-coding").
const ExprHelp = `Supported variables:
  altitude_km        - candidate satellite altitude, km
  velocity_kms       - candidate satellite velocity, km/s
  elevation_deg      - candidate satellite elevation, degrees
supported functions: the same set govaluate provides (+, -, *, /, min, max, etc. via operators)`

var supportedExprVars = map[string]bool{
	"altitude_km":   true,
	"velocity_kms":  true,
	"elevation_deg": true,
}

// Expression wraps a govaluate formula used to derive a tunable from the
// current candidate's geometry, instead of a hardcoded literal.
type Expression struct {
	Source string
	parsed *govaluate.EvaluableExpression
}

// NewExpression parses src and rejects any variable name this package
// doesn't understand, so a typo in config fails fast at startup rather than
// silently evaluating to zero at serving time.
func NewExpression(src string) (*Expression, error) {
	parsed, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, fmt.Errorf("parsing expression %q: %w", src, err)
	}
	for _, v := range parsed.Vars() {
		if !supportedExprVars[v] {
			return nil, fmt.Errorf("expression %q: unsupported variable %q", src, v)
		}
	}
	return &Expression{Source: src, parsed: parsed}, nil
}

// Evaluate runs the formula against one candidate's geometry.
func (e *Expression) Evaluate(altitudeKM, velocityKMS, elevationDeg float64) (float64, error) {
	params := map[string]interface{}{
		"altitude_km":   altitudeKM,
		"velocity_kms":  velocityKMS,
		"elevation_deg": elevationDeg,
	}
	raw, err := e.parsed.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("evaluating %q: %w", e.Source, err)
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q did not evaluate to a number", e.Source)
	}
	return v, nil
}

// DynamicTunables lets operators replace the fixed StabilityReferenceKM and
// HeadingBonusWindowDeg constants with formulas evaluated per candidate,
// falling back to DefaultTunables for anything left unset.
type DynamicTunables struct {
	Base                    Tunables
	StabilityReferenceExpr  *Expression
	HeadingBonusWindowExpr  *Expression
}

// Resolve produces a concrete Tunables for one candidate observation.
func (d DynamicTunables) Resolve(altitudeKM, velocityKMS, elevationDeg float64) (Tunables, error) {
	t := d.Base
	if d.StabilityReferenceExpr != nil {
		v, err := d.StabilityReferenceExpr.Evaluate(altitudeKM, velocityKMS, elevationDeg)
		if err != nil {
			return t, err
		}
		t.StabilityReferenceKM = v
	}
	if d.HeadingBonusWindowExpr != nil {
		v, err := d.HeadingBonusWindowExpr.Evaluate(altitudeKM, velocityKMS, elevationDeg)
		if err != nil {
			return t, err
		}
		t.HeadingBonusWindowDeg = v
	}
	return t, nil
}
