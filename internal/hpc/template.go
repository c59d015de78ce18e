// Package hpc renders and submits array-job scripts for pipeline runs
// that opt into HPC execution (spec.md §4.8).
package hpc

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// reservedPrefix marks tokens the emitter itself sets; a caller-supplied
// Extra map may not override one (spec.md §4.8: "Tokens starting with
// NIPOPPY_ are reserved and set by the emitter").
const reservedPrefix = "NIPOPPY_"

// Data is everything a job-script template may reference.
type Data struct {
	// HPC names the scheduler kind the script targets ("slurm", "sge",
	// or a registered kind).
	HPC string
	// Commands is one concrete shell command per work unit, in
	// scheduler-yielded order.
	Commands []string
	// ArrayIndexVar is the template's name for the job-array index
	// variable (e.g. "SLURM_ARRAY_TASK_ID").
	ArrayIndexVar string
	Time                  string
	Memory                string
	Cores                 string
	Account               string
	Partition             string
	ArrayConcurrencyLimit string
	// Preamble is a dataset-wide list of shell lines emitted before the
	// per-unit dispatch block.
	Preamble []string
	// Extra carries tokens that originate from the pipeline's HPC block
	// and are not already named above.
	Extra map[string]string
}

// ErrReservedToken is returned when Extra defines a NIPOPPY_-prefixed
// key, which would shadow an emitter-owned token.
type ErrReservedToken struct{ Key string }

func (e *ErrReservedToken) Error() string {
	return fmt.Sprintf("hpc: %q is reserved for the emitter", e.Key)
}

// Render executes templateText against data using Sprig's hermetic
// function map (grounded on the same pairing the teacher's workflow
// templater uses: text/template + sprig.HermeticTxtFuncMap, which omits
// sprig's environment/time/random functions so a render is reproducible
// across pipeline steps).
func Render(templateText string, data Data) (string, error) {
	values := map[string]any{
		"HPC":                      data.HPC,
		"NIPOPPY_COMMANDS":         data.Commands,
		"NIPOPPY_ARRAY_INDEX_VAR":  data.ArrayIndexVar,
		"NIPOPPY_PREAMBLE":         data.Preamble,
		"TIME":                     data.Time,
		"MEMORY":                   data.Memory,
		"CORES":                    data.Cores,
		"ACCOUNT":                  data.Account,
		"PARTITION":                data.Partition,
		"ARRAY_CONCURRENCY_LIMIT":  data.ArrayConcurrencyLimit,
	}
	for k, v := range data.Extra {
		if strings.HasPrefix(k, reservedPrefix) {
			return "", &ErrReservedToken{Key: k}
		}
		values[k] = v
	}

	tmpl, err := template.New("hpc-job-script").Funcs(sprig.HermeticTxtFuncMap()).Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("hpc: parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return "", fmt.Errorf("hpc: render template: %w", err)
	}
	return buf.String(), nil
}
