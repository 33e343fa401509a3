// Package fakerdefault is a minimal, dependency-free realistic-value
// provider good enough to run the engine standalone (spec.md §4.3's
// "Realistic-value provider is an external collaborator... implementers
// may choose any library"). Swapping in a richer provider is a one-file
// adapter satisfying generator.RealisticProvider; the engine itself never
// imports a concrete faker library.
package fakerdefault

import (
	"fmt"
	"math/rand"
	"strings"
)

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
	"Linda", "William", "Elizabeth", "David", "Barbara", "Richard", "Susan",
	"Joseph", "Jessica", "Thomas", "Sarah", "Charles", "Karen",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
}

var words = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
	"hotel", "india", "juliet", "kilo", "lima", "mike", "november",
	"oscar", "papa", "quebec", "romeo", "sierra", "tango",
}

var streetSuffixes = []string{"St", "Ave", "Blvd", "Dr", "Ln", "Rd", "Way"}

var domains = []string{"example.com", "example.org", "example.net"}

// Provider is a minimal realistic-value provider keyed on the method path
// namespaced by spec.md §4.3 as "faker.<provider>.<method>" (the leading
// "faker." is stripped by the caller before Generate is invoked).
type Provider struct {
	rng *rand.Rand
}

// New returns a Provider driven by its own random source, seeded
// independently of the engine's PRNG streams (realistic-value text content
// carries no determinism guarantee under spec.md §4.2, only emitted-record
// selection and numeric fields do).
func New(seed int64) *Provider {
	return &Provider{rng: rand.New(rand.NewSource(seed))}
}

// Generate implements generator.RealisticProvider.
func (p *Provider) Generate(methodPath string, params map[string]interface{}) (interface{}, error) {
	parts := strings.SplitN(methodPath, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("fakerdefault: malformed method path %q", methodPath)
	}
	provider, method := parts[0], parts[1]

	switch provider {
	case "person":
		return p.person(method)
	case "internet":
		return p.internet(method)
	case "address":
		return p.address(method)
	case "lorem":
		return p.lorem(method, params)
	case "commerce":
		return p.commerce(method)
	default:
		return nil, fmt.Errorf("fakerdefault: unknown provider %q", provider)
	}
}

func (p *Provider) pick(list []string) string {
	return list[p.rng.Intn(len(list))]
}

func (p *Provider) person(method string) (interface{}, error) {
	switch method {
	case "first_name":
		return p.pick(firstNames), nil
	case "last_name":
		return p.pick(lastNames), nil
	case "full_name":
		return p.pick(firstNames) + " " + p.pick(lastNames), nil
	default:
		return nil, fmt.Errorf("fakerdefault: unknown method person.%s", method)
	}
}

func (p *Provider) internet(method string) (interface{}, error) {
	switch method {
	case "email":
		return fmt.Sprintf("%s.%s%d@%s",
			strings.ToLower(p.pick(firstNames)),
			strings.ToLower(p.pick(lastNames)),
			p.rng.Intn(1000),
			p.pick(domains)), nil
	case "username":
		return fmt.Sprintf("%s%d", strings.ToLower(p.pick(lastNames)), p.rng.Intn(10000)), nil
	case "url":
		return fmt.Sprintf("https://www.%s/%s", p.pick(domains), p.pick(words)), nil
	default:
		return nil, fmt.Errorf("fakerdefault: unknown method internet.%s", method)
	}
}

func (p *Provider) address(method string) (interface{}, error) {
	switch method {
	case "street_address":
		return fmt.Sprintf("%d %s %s", p.rng.Intn(9000)+100, p.pick(lastNames), p.pick(streetSuffixes)), nil
	case "city":
		return p.pick(lastNames) + "ville", nil
	case "zip_code":
		return fmt.Sprintf("%05d", p.rng.Intn(100000)), nil
	default:
		return nil, fmt.Errorf("fakerdefault: unknown method address.%s", method)
	}
}

func (p *Provider) lorem(method string, params map[string]interface{}) (interface{}, error) {
	switch method {
	case "word":
		return p.pick(words), nil
	case "sentence":
		n := 6
		if v, ok := params["word_count"]; ok {
			if f, ok := toInt(v); ok {
				n = f
			}
		}
		out := make([]string, n)
		for i := range out {
			out[i] = p.pick(words)
		}
		return strings.Join(out, " ") + ".", nil
	default:
		return nil, fmt.Errorf("fakerdefault: unknown method lorem.%s", method)
	}
}

func (p *Provider) commerce(method string) (interface{}, error) {
	switch method {
	case "product_name":
		return strings.Title(p.pick(words)) + " " + strings.Title(p.pick(words)), nil
	case "department":
		return strings.Title(p.pick(words)), nil
	default:
		return nil, fmt.Errorf("fakerdefault: unknown method commerce.%s", method)
	}
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
