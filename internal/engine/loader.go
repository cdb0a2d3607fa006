package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/afero"
)

// --- 1. FIELD PARSERS ---

func unsafeToString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Tokens read as null in numeric columns.
var nullTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "null": {}, "NULL": {},
}

// parseMetric parses "123.45" -> 123.45. ok is false for a null token.
func parseMetric(b []byte) (float64, bool, error) {
	b = bytes.TrimSpace(b)
	if _, null := nullTokens[unsafeToString(b)]; null {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("non-numeric value %q", b)
	}
	return v, true, nil
}

// parseYear parses "1966" -> 1966. "1966.0" is accepted as well.
func parseYear(b []byte) (int32, error) {
	b = bytes.TrimSpace(b)
	if n, err := strconv.ParseInt(string(b), 10, 32); err == nil {
		return int32(n), nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("year %q is not an integer", b)
	}
	return int32(f), nil
}

// splitFields hops over a line with bytes.Cut. Lines with quotes go
// through encoding/csv instead.
func splitFields(line []byte, dst [][]byte) ([][]byte, error) {
	dst = dst[:0]
	if bytes.IndexByte(line, '"') != -1 {
		rec, err := csv.NewReader(bytes.NewReader(line)).Read()
		if err != nil {
			return nil, err
		}
		for _, f := range rec {
			dst = append(dst, []byte(f))
		}
		return dst, nil
	}
	rest := line
	for {
		field, tail, found := bytes.Cut(rest, sep)
		dst = append(dst, field)
		if !found {
			return dst, nil
		}
		rest = tail
	}
}

var (
	sep   = []byte{','}
	quote = []byte{'"'}
)

// cutLine returns the first line of body without its line ending.
func cutLine(body []byte) (line, rest []byte) {
	if i := bytes.IndexByte(body, '\n'); i != -1 {
		return bytes.TrimRight(body[:i], "\r"), body[i+1:]
	}
	return bytes.TrimRight(body, "\r"), nil
}

// --- 2. MAIN LOADER ---

// Load reads the dataset at path. ".parquet" files go through the Parquet
// reader; everything else is treated as CSV.
func Load(fs afero.Fs, path string) (*ColumnStore, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return LoadParquet(fs, path)
	}
	return LoadCSV(fs, path)
}

// LoadCSV reads a comma-delimited file whose first row is the header.
func LoadCSV(fs afero.Fs, path string) (*ColumnStore, error) {
	start := time.Now()
	slog.Info("loading dataset", "path", path, "format", "csv")

	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cs, err := ParseCSV(content)
	if err != nil {
		var ie *IngestError
		if errors.As(err, &ie) {
			ie.Path = path
		}
		return nil, err
	}

	slog.Info("dataset loaded", "path", path, "rows", cs.Len(), "metrics", len(cs.MetricNames), "elapsed", time.Since(start))
	return cs, nil
}

type sourceLine struct {
	text []byte
	no   int
}

type localDict struct {
	m    map[string]int32
	list []string
	ids  []int32
}

func newLocalDict(rows int) *localDict {
	return &localDict{m: make(map[string]int32), ids: make([]int32, rows)}
}

func (d *localDict) intern(row int, field []byte) {
	s := unsafeToString(field)
	if id, ok := d.m[s]; ok {
		d.ids[row] = id
		return
	}
	id := int32(len(d.list))
	str := string(field) // Allocate string for dict
	d.list = append(d.list, str)
	d.m[str] = id
	d.ids[row] = id
}

// ParseCSV parses raw CSV bytes into a ColumnStore.
func ParseCSV(content []byte) (*ColumnStore, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	// A. Header
	headerLine, body, _ := bytes.Cut(content, []byte{'\n'})
	headerLine = bytes.TrimRight(headerLine, "\r")
	if len(bytes.TrimSpace(headerLine)) == 0 {
		return nil, &IngestError{Missing: []string{ColYear, ColState, ColDistrict}}
	}
	header, err := csv.NewReader(bytes.NewReader(headerLine)).Read()
	if err != nil {
		return nil, &IngestError{Line: 1, Reason: fmt.Sprintf("malformed header: %v", err)}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	yearIdx, stateIdx, distIdx := -1, -1, -1
	var metricNames []string
	var metricCols []int
	for i, name := range header {
		switch name {
		case ColYear:
			yearIdx = i
		case ColState:
			stateIdx = i
		case ColDistrict:
			distIdx = i
		default:
			metricNames = append(metricNames, name)
			metricCols = append(metricCols, i)
		}
	}
	var missing []string
	for name, idx := range map[string]int{ColYear: yearIdx, ColState: stateIdx, ColDistrict: distIdx} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &IngestError{Missing: missing}
	}

	// B. Split lines, dropping blanks. A quoted field may span lines.
	var lines []sourceLine
	lineNo := 1
	for len(body) > 0 {
		lineNo++
		first := lineNo
		var line []byte
		line, body = cutLine(body)
		for bytes.Count(line, quote)%2 == 1 && len(body) > 0 {
			var next []byte
			next, body = cutLine(body)
			lineNo++
			line = append(append(line[:len(line):len(line)], '\n'), next...)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, sourceLine{text: line, no: first})
	}
	totalRows := len(lines)

	// C. Allocate Store ONCE
	store := &ColumnStore{
		Years:       make([]int32, totalRows),
		StateIDs:    make([]int32, totalRows),
		DistrictIDs: make([]int32, totalRows),
		MetricNames: metricNames,
	}
	values := make([][]float64, len(metricNames))
	valid := make([][]bool, len(metricNames))
	for m := range metricNames {
		values[m] = make([]float64, totalRows)
		valid[m] = make([]bool, totalRows)
	}

	// D. Parallel Parsing
	numWorkers := runtime.NumCPU()
	if numWorkers > totalRows {
		numWorkers = max(totalRows, 1)
	}
	chunkSize := (totalRows + numWorkers - 1) / numWorkers
	offsets := make([]int, numWorkers)
	states := make([]*localDict, numWorkers)
	districts := make([]*localDict, numWorkers)
	errs := make([]error, numWorkers)

	var parseWg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := min(w*chunkSize, totalRows)
		end := min(start+chunkSize, totalRows)
		offsets[w] = start
		states[w] = newLocalDict(end - start)
		districts[w] = newLocalDict(end - start)

		parseWg.Add(1)
		go func(idx, start, end int) {
			defer parseWg.Done()
			sd, dd := states[idx], districts[idx]
			fields := make([][]byte, 0, len(header))

			for row := 0; row < end-start; row++ {
				ln := lines[start+row]
				var err error
				fields, err = splitFields(ln.text, fields)
				if err != nil {
					errs[idx] = &IngestError{Line: ln.no, Reason: err.Error()}
					return
				}
				if len(fields) != len(header) {
					errs[idx] = &IngestError{Line: ln.no, Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(fields))}
					return
				}

				y, err := parseYear(fields[yearIdx])
				if err != nil {
					errs[idx] = &IngestError{Line: ln.no, Column: ColYear, Reason: err.Error()}
					return
				}
				store.Years[start+row] = y
				sd.intern(row, bytes.TrimSpace(fields[stateIdx]))
				dd.intern(row, bytes.TrimSpace(fields[distIdx]))

				for m, col := range metricCols {
					v, ok, err := parseMetric(fields[col])
					if err != nil {
						errs[idx] = &IngestError{Line: ln.no, Column: metricNames[m], Reason: err.Error()}
						return
					}
					values[m][start+row] = v
					valid[m][start+row] = ok
				}
			}
		}(w, start, end)
	}
	parseWg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	// E. Merge Dictionaries
	var dictWg sync.WaitGroup
	dictWg.Add(2)

	mergeDict := func(locals []*localDict, globalDict *[]string, globalIDs []int32) {
		defer dictWg.Done()
		gMap := make(map[string]int32)
		*globalDict = make([]string, 0, 64)
		for w, ld := range locals {
			remap := make([]int32, len(ld.list))
			for lid, s := range ld.list {
				gid, exists := gMap[s]
				if !exists {
					gid = int32(len(*globalDict))
					*globalDict = append(*globalDict, s)
					gMap[s] = gid
				}
				remap[lid] = gid
			}
			dest := globalIDs[offsets[w] : offsets[w]+len(ld.ids)]
			for k, id := range ld.ids {
				dest[k] = remap[id]
			}
		}
	}

	go mergeDict(states, &store.StateDict, store.StateIDs)
	go mergeDict(districts, &store.DistrictDict, store.DistrictIDs)
	dictWg.Wait()

	store.Metrics = buildMetricArrays(values, valid)
	store.finish()
	return store, nil
}
