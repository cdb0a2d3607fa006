package sqlref

import (
	"fmt"
	"strings"

	"agridash/internal/catalog"
	"agridash/internal/engine"
)

// statements maps entry IDs to reference SQL. The correlation matrix has
// no SQL rendition. Explicit secondary ordering and rowid reproduce the
// engine's tie-breaking; SQLite also sorts NULL lowest.
func statements() map[int]string {
	year, state, dist := quote(engine.ColYear), quote(engine.ColState), quote(engine.ColDistrict)

	return map[int]string{
		1: topKTrend(3, []string{catalog.RiceProduction}, []string{"total_production"}),
		2: windowDelta("AVG", catalog.WheatYield, dist, "yield_increase", 5),
		3: windowDelta("SUM", catalog.OilseedsProduction, state, "growth", 5),
		5: topKTrend(5, []string{catalog.CottonProduction}, []string{"total_production"}),
		6: fmt.Sprintf(`SELECT %[2]s, %[3]s, %[4]s FROM %[5]s
WHERE %[1]s = 2020
ORDER BY %[4]s DESC, %[2]s, %[3]s, rowid
LIMIT 5`, year, dist, state, quote(catalog.GroundnutProduction), table),
		7: fmt.Sprintf(`SELECT %[1]s, AVG(%[2]s) AS avg_yield FROM %[3]s
GROUP BY %[1]s
ORDER BY %[1]s`, year, quote(catalog.MaizeYield), table),
		8: fmt.Sprintf(`SELECT %[1]s, SUM(%[2]s) AS total_area FROM %[3]s
GROUP BY %[1]s
ORDER BY total_area DESC, %[1]s`, state, quote(catalog.OilseedsArea), table),
		9: fmt.Sprintf(`SELECT %[1]s, %[2]s, MAX(%[3]s) AS max_yield FROM %[4]s
GROUP BY %[1]s, %[2]s
ORDER BY max_yield DESC, %[1]s, %[2]s
LIMIT 5`, dist, state, quote(catalog.RiceYield), table),
		10: topKTrend(5,
			[]string{catalog.RiceProduction, catalog.WheatProduction},
			[]string{"rice_production", "wheat_production"}),
	}
}

func topKTrend(k int, metrics, as []string) string {
	year, state := quote(engine.ColYear), quote(engine.ColState)

	quoted := make([]string, len(metrics))
	sums := make([]string, len(metrics))
	for i, m := range metrics {
		quoted[i] = quote(m)
		sums[i] = fmt.Sprintf("SUM(%s) AS %s", quoted[i], as[i])
	}

	return fmt.Sprintf(`SELECT %[1]s, %[2]s, %[3]s FROM %[4]s
WHERE %[2]s IN (
  SELECT %[2]s FROM %[4]s
  GROUP BY %[2]s
  ORDER BY SUM(%[5]s) DESC, %[2]s
  LIMIT %[6]d
)
GROUP BY %[1]s, %[2]s
ORDER BY %[1]s, %[2]s`, year, state, strings.Join(sums, ", "), table, strings.Join(quoted, " + "), k)
}

func windowDelta(fn, metric, key, as string, window int) string {
	year := quote(engine.ColYear)
	return fmt.Sprintf(`WITH yearly AS (
  SELECT %[1]s AS k, %[2]s, %[3]s(%[4]s) AS v FROM %[5]s
  WHERE %[2]s >= (SELECT MAX(%[2]s) FROM %[5]s) - %[6]d
  GROUP BY %[1]s, %[2]s
)
SELECT k AS %[1]s, MAX(v) - MIN(v) AS %[7]s FROM yearly
GROUP BY k
ORDER BY %[7]s DESC, k
LIMIT 5`, key, year, fn, quote(metric), table, window-1, as)
}
