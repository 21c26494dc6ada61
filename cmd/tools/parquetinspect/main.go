package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	archive "github.com/rexbrahh/curve-gateway/sinks/parquet"
)

type summary struct {
	TotalRows          int            `json:"total_rows"`
	EmptyMint          int            `json:"empty_mint"`
	MissingWindowStart int            `json:"missing_window_start"`
	InvalidRange       int            `json:"invalid_range"`
	Duplicates         int            `json:"duplicates"`
	RowsPerMint        map[string]int `json:"rows_per_mint"`
	UniqueIntervals    []int64        `json:"unique_intervals"`

	seen      map[string]struct{}
	intervals map[int64]struct{}
}

func newSummary() *summary {
	return &summary{
		RowsPerMint: make(map[string]int),
		seen:        make(map[string]struct{}),
		intervals:   make(map[int64]struct{}),
	}
}

func main() {
	pattern := flag.String("pattern", "", "glob pattern selecting parquet files to inspect")
	flag.Parse()

	if *pattern == "" {
		log.Fatal("pattern is required")
	}

	files, err := filepath.Glob(*pattern)
	if err != nil {
		log.Fatalf("glob parquet files: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no parquet files match pattern %s", *pattern)
	}

	sum := newSummary()
	for _, path := range files {
		if err := inspectFile(path, sum); err != nil {
			log.Fatalf("inspect %s: %v", path, err)
		}
	}
	sum.finish()

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sum); err != nil {
		log.Fatalf("encode summary: %v", err)
	}
}

func inspectFile(path string, sum *summary) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return inspect(file, sum)
}

func inspect(r io.ReaderAt, sum *summary) error {
	reader := parquet.NewGenericReader[archive.CandleRow](r)
	defer reader.Close()

	rows := make([]archive.CandleRow, 128)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			sum.add(&rows[i])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read parquet rows: %w", err)
		}
	}
}

func (s *summary) add(row *archive.CandleRow) {
	s.TotalRows++

	if row.Mint == "" {
		s.EmptyMint++
	} else {
		s.RowsPerMint[row.Mint]++
	}
	if row.WindowStart <= 0 {
		s.MissingWindowStart++
	}
	if row.Low > row.High || row.Open < row.Low || row.Open > row.High || row.Close < row.Low || row.Close > row.High {
		s.InvalidRange++
	}
	s.intervals[row.IntervalSeconds] = struct{}{}

	key := fmt.Sprintf("%s:%d:%d", row.Mint, row.IntervalSeconds, row.WindowStart)
	if _, ok := s.seen[key]; ok {
		s.Duplicates++
	} else {
		s.seen[key] = struct{}{}
	}
}

func (s *summary) finish() {
	if len(s.intervals) == 0 {
		return
	}
	s.UniqueIntervals = make([]int64, 0, len(s.intervals))
	for v := range s.intervals {
		s.UniqueIntervals = append(s.UniqueIntervals, v)
	}
	sort.Slice(s.UniqueIntervals, func(i, j int) bool { return s.UniqueIntervals[i] < s.UniqueIntervals[j] })
}
