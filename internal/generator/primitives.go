package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/resink-ai/resinker/internal/engineerr"
	"github.com/resink-ai/resinker/internal/generator/expr"
	"github.com/resink-ai/resinker/internal/specdef"
)

const alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func renderPrimitive(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	name := node.Generator
	if strings.HasPrefix(name, "faker.") {
		return renderFaker(node, ctx)
	}

	switch name {
	case "uuid_v4":
		return uuid.NewString(), nil
	case "random_int":
		return renderRandomInt(node, ctx)
	case "random_float":
		return renderRandomFloat(node, ctx)
	case "random_alphanumeric":
		return renderRandomAlphanumeric(node, ctx)
	case "choice":
		return renderChoice(node, ctx)
	case "current_timestamp":
		return renderCurrentTimestamp(node, ctx)
	case "static":
		return node.Params["value"], nil
	case "static_hashed":
		return renderStaticHashed(node, ctx)
	case "derived":
		return renderDerived(node, ctx)
	case "conditional_choice":
		return renderConditionalChoice(node, ctx)
	default:
		return nil, engineerr.New(engineerr.CodeSpecUnknownGenerator,
			fmt.Sprintf("generator: unknown generator %q", name))
	}
}

func renderFaker(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	if ctx.RealisticProvider == nil {
		return nil, fmt.Errorf("generator: no realistic-value provider configured for %q", node.Generator)
	}
	methodPath := strings.TrimPrefix(node.Generator, "faker.")
	v, err := ctx.RealisticProvider.Generate(methodPath, node.Params)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.CodeGeneratorFault, fmt.Sprintf("faker provider: %s", methodPath), err)
	}
	return v, nil
}

func paramInt(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func paramFloat(params map[string]interface{}, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func renderRandomInt(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	min := paramInt(node.Params, "min", 0)
	max := paramInt(node.Params, "max", min)
	if max < min {
		return nil, fmt.Errorf("generator: random_int max < min")
	}
	return min + ctx.Prng.Generator().Intn(max-min+1), nil
}

func renderRandomFloat(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	min := paramFloat(node.Params, "min", 0)
	max := paramFloat(node.Params, "max", min)
	if max < min {
		return nil, fmt.Errorf("generator: random_float max < min")
	}
	v := min + ctx.Prng.Generator().Float64()*(max-min)
	if _, ok := node.Params["precision"]; ok {
		v = roundTo(v, paramInt(node.Params, "precision", 0))
	}
	return v, nil
}

func renderRandomAlphanumeric(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	length := paramInt(node.Params, "length", 8)
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = alphanumericAlphabet[ctx.Prng.Generator().Intn(len(alphanumericAlphabet))]
	}
	return string(buf), nil
}

func renderChoice(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	choices, weights, err := choicesAndWeights(node.Params)
	if err != nil {
		return nil, err
	}
	return weightedPick(choices, weights, ctx)
}

func choicesAndWeights(params map[string]interface{}) ([]interface{}, []float64, error) {
	rawChoices, ok := params["choices"].([]interface{})
	if !ok || len(rawChoices) == 0 {
		return nil, nil, fmt.Errorf("generator: choice requires a non-empty choices list")
	}

	var weights []float64
	if rawWeights, ok := params["weights"].([]interface{}); ok {
		if len(rawWeights) != len(rawChoices) {
			return nil, nil, fmt.Errorf("generator: weights length must match choices length")
		}
		weights = make([]float64, len(rawWeights))
		var total float64
		for i, w := range rawWeights {
			f, ok := toFloatParam(w)
			if !ok {
				return nil, nil, fmt.Errorf("generator: non-numeric weight %v", w)
			}
			weights[i] = f
			total += f
		}
		if total <= 0 {
			return nil, nil, fmt.Errorf("generator: weights must sum > 0")
		}
	}
	return rawChoices, weights, nil
}

func weightedPick(choices []interface{}, weights []float64, ctx *RenderContext) (interface{}, error) {
	rng := ctx.Prng.Generator()
	if len(weights) == 0 {
		return choices[rng.Intn(len(choices))], nil
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	target := rng.Float64() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if target < acc {
			return choices[i], nil
		}
	}
	return choices[len(choices)-1], nil
}

func renderCurrentTimestamp(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	now := ctx.Clock.Now()
	format := node.Format
	if format == "" {
		return now.UTC().Format(time.RFC3339), nil
	}
	return now.UTC().Format(format), nil
}

func renderStaticHashed(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	algorithm, _ := node.Params["algorithm"].(string)
	if algorithm == "" {
		return nil, fmt.Errorf("generator: static_hashed requires an algorithm")
	}
	sourceSpec, ok := node.Params["raw_value_source"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("generator: static_hashed requires raw_value_source")
	}
	nested := nestedGeneratorNode(sourceSpec)
	rawValue, err := renderPrimitive(nested, ctx)
	if err != nil {
		return nil, fmt.Errorf("static_hashed raw_value_source: %w", err)
	}
	raw, ok := rawValue.(string)
	if !ok {
		raw = fmt.Sprintf("%v", rawValue)
	}

	switch algorithm {
	case "bcrypt":
		hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("generator: bcrypt hashing failed: %w", err)
		}
		return string(hashed), nil
	case "sha256":
		sum := sha256.Sum256([]byte(raw))
		return hex.EncodeToString(sum[:]), nil
	default:
		return nil, fmt.Errorf("generator: unsupported static_hashed algorithm %q", algorithm)
	}
}

func nestedGeneratorNode(spec map[string]interface{}) *specdef.SchemaNode {
	node := &specdef.SchemaNode{Kind: specdef.KindPrimitive}
	if g, ok := spec["generator"].(string); ok {
		node.Generator = g
	}
	if p, ok := spec["params"].(map[string]interface{}); ok {
		node.Params = p
	}
	if f, ok := spec["format"].(string); ok {
		node.Format = f
	}
	return node
}

func renderDerived(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	expression, _ := node.Params["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("generator: derived requires an expression")
	}
	compiled, err := expr.Parse(expression)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.CodeGeneratorFault, "derived expression parse failure", err)
	}
	fields := flattenFields(ctx.CurrentPayloadPartial)
	v, err := compiled.Eval(fields)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.CodeGeneratorFault, "derived expression evaluation failure", err)
	}
	if _, ok := node.Params["precision"]; ok {
		v = roundTo(v, paramInt(node.Params, "precision", 0))
	}
	return v, nil
}

func renderConditionalChoice(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	conditionField, _ := node.Params["condition_field"].(string)
	if conditionField == "" {
		return nil, fmt.Errorf("generator: conditional_choice requires condition_field")
	}
	fields := flattenFields(ctx.CurrentPayloadPartial)
	actual, present := fields[conditionField]

	rawCases, ok := node.Params["cases"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("generator: conditional_choice requires cases")
	}

	var defaultCase map[string]interface{}
	for _, rc := range rawCases {
		c, ok := rc.(map[string]interface{})
		if !ok {
			continue
		}
		if _, isDefault := c["default"]; isDefault {
			defaultCase = c
			continue
		}
		if present && caseMatches(c, actual) {
			return choiceFromCase(c, ctx)
		}
	}
	if defaultCase != nil {
		return choiceFromCase(defaultCase, ctx)
	}
	return nil, fmt.Errorf("generator: conditional_choice had no matching case and no default")
}

func caseMatches(c map[string]interface{}, actual interface{}) bool {
	if v, ok := c["condition_value_greater_than"]; ok {
		af, aok := toFloatParam(actual)
		bf, bok := toFloatParam(v)
		return aok && bok && af > bf
	}
	if v, ok := c["condition_value_less_than"]; ok {
		af, aok := toFloatParam(actual)
		bf, bok := toFloatParam(v)
		return aok && bok && af < bf
	}
	if v, ok := c["condition_value_equals"]; ok {
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", v)
	}
	return false
}

func choiceFromCase(c map[string]interface{}, ctx *RenderContext) (interface{}, error) {
	choices, weights, err := choicesAndWeights(c)
	if err != nil {
		return nil, err
	}
	return weightedPick(choices, weights, ctx)
}

func toFloatParam(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func roundTo(v float64, precision int) float64 {
	mul := math.Pow(10, float64(precision))
	return math.Round(v*mul) / mul
}
