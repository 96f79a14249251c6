package validation

import (
	"fmt"

	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// validateLoops reports loop configuration that will not behave as the
// author probably expects. Everything here is a warning. Loops are the ones
// loopguard.start can run, self-loops included.
func validateLoops(doc *schema.WorkflowDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	loops := graph.DetectLoopsIncludingSelf(doc.Connections)

	for i, c := range doc.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		_, inLoop := graph.ContainingLoop(c, loops)

		switch {
		case c.IsLoopEdge && !inLoop:
			result.AddWarning(path+".is_loop_edge", schema.ErrCodeValidation,
				"connection is flagged as a loop edge but is not part of any cycle")
		case c.LoopConfig != nil && !inLoop:
			result.AddWarning(path+".loop_config", schema.ErrCodeValidation,
				"loop_config is ignored on a connection outside any cycle")
		}

		if c.LoopConfig != nil {
			checkThreshold(c.LoopConfig.ConvergenceThreshold, path+".loop_config.convergence_threshold", result)
			for j, cond := range c.LoopConfig.ExitConditions {
				checkThreshold(cond.Threshold, fmt.Sprintf("%s.loop_config.exit_conditions[%d].threshold", path, j), result)
			}
		}
	}

	for i, scc := range loops {
		if loop.ConfigFor(scc, doc.Connections) != nil {
			continue
		}
		msg := fmt.Sprintf("cycle %v has no loop_config; defaults apply", scc.Nodes)
		if !graph.IsMultiNodeCycle(scc) {
			msg = fmt.Sprintf("self-loop on node %q has no loop_config; defaults apply", scc.Nodes[0])
		}
		result.AddWarning(fmt.Sprintf("loops[%d]", i), schema.ErrCodeCycleDetected, msg)
	}
	return result
}

func checkThreshold(t *float64, path string, result *schema.ValidationResult) {
	if t == nil {
		return
	}
	if *t < 0 || *t > 1 {
		result.AddWarning(path, schema.ErrCodeValidation,
			fmt.Sprintf("threshold %g is outside [0,1]", *t))
	}
}
