package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/leadgate/internal/domain/visibility"
)

// argList collects positional query arguments.
type argList []any

func (a *argList) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

// compileFilter renders e as a boolean SQL expression over the leads
// table aliased as l. Arguments are appended to args.
func compileFilter(e visibility.Expr, args *argList) (string, error) {
	switch x := e.(type) {
	case visibility.All:
		return "TRUE", nil
	case visibility.None:
		return "FALSE", nil
	case visibility.And:
		if len(x.Terms) == 0 {
			return "TRUE", nil
		}
		parts := make([]string, 0, len(x.Terms))
		for _, t := range x.Terms {
			s, err := compileFilter(t, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case visibility.OpenAssignment:
		return "EXISTS (SELECT 1 FROM assignments a WHERE a.lead_id = l.id AND a.user_id = " +
			args.add(x.UserID) + " AND a.status = 'open')", nil
	case visibility.PipelineIn:
		if len(x.Values) == 0 {
			return "FALSE", nil
		}
		return "l.pipeline = ANY(" + args.add(x.Values) + ")", nil
	}
	return "", fmt.Errorf("unsupported visibility expression %T", e)
}
