package constraints

import (
	"fmt"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// LintIssue is one determinism violation found in a constraint definition.
type LintIssue struct {
	Message string `json:"message"`
}

// lintDeterminism parses a definition and walks its AST rejecting constructs
// whose results vary between evaluations of the same input: wall-clock
// access through now(), floating point literals, and map iteration through
// keys() or values(). The bound now variable stays legal because the engine
// pins it to the validation timestamp.
func lintDeterminism(env *cel.Env, definition string) ([]LintIssue, error) {
	parsed, issues := env.Parse(definition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse error: %w", issues.Err())
	}

	//nolint:staticcheck // Expr() is deprecated but still the only way to walk the proto AST.
	expr := parsed.Expr()

	var found []LintIssue
	checkRecursively(expr, &found)
	return found, nil
}

func checkRecursively(expr *exprpb.Expr, issues *[]LintIssue) {
	if expr == nil {
		return
	}

	switch e := expr.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := e.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			*issues = append(*issues, LintIssue{
				Message: "floating point literals are forbidden in constraint definitions",
			})
		}

	case *exprpb.Expr_CallExpr:
		switch e.CallExpr.Function {
		case "now":
			*issues = append(*issues, LintIssue{
				Message: "now() is forbidden; compare against the bound now timestamp",
			})
		case "keys", "values":
			*issues = append(*issues, LintIssue{
				Message: fmt.Sprintf("map iteration via %s() is forbidden; test membership directly", e.CallExpr.Function),
			})
		}
		checkRecursively(e.CallExpr.Target, issues)
		for _, arg := range e.CallExpr.Args {
			checkRecursively(arg, issues)
		}

	case *exprpb.Expr_SelectExpr:
		checkRecursively(e.SelectExpr.Operand, issues)

	case *exprpb.Expr_ListExpr:
		for _, elem := range e.ListExpr.Elements {
			checkRecursively(elem, issues)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range e.StructExpr.Entries {
			checkRecursively(entry.GetMapKey(), issues)
			checkRecursively(entry.GetValue(), issues)
		}

	case *exprpb.Expr_ComprehensionExpr:
		checkRecursively(e.ComprehensionExpr.IterRange, issues)
		checkRecursively(e.ComprehensionExpr.AccuInit, issues)
		checkRecursively(e.ComprehensionExpr.LoopCondition, issues)
		checkRecursively(e.ComprehensionExpr.LoopStep, issues)
		checkRecursively(e.ComprehensionExpr.Result, issues)
	}
}
