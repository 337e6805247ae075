package jobfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/casa.report/internal/casa"
)

// CSV column names. track_id, frame, x and y are required; morphology is
// optional. Column order is free.
const (
	colTrackID    = "track_id"
	colFrame      = "frame"
	colX          = "x"
	colY          = "y"
	colMorphology = "morphology"
)

// ParseCSV reads one sample per row. Rows are grouped by track_id in order
// of first appearance and keep their file order within a track; ordering
// is validated later by the engine, not here. A track's morphology is
// taken from its first non-empty morphology cell.
func ParseCSV(r io.Reader) ([]casa.Trajectory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty CSV: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colTrackID, colFrame, colX, colY} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("invalid CSV header, expected columns: track_id,frame,x,y[,morphology]; missing %q", required)
		}
	}
	morphCol, hasMorph := cols[colMorphology]

	trajectories := []casa.Trajectory{}
	index := make(map[casa.TrackID]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)

		id := casa.TrackID(strings.TrimSpace(record[cols[colTrackID]]))
		if id == "" {
			return nil, fmt.Errorf("empty track_id at line %d", line)
		}
		frame, err := strconv.ParseInt(strings.TrimSpace(record[cols[colFrame]]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frame at line %d: %v", line, err)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(record[cols[colX]]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x at line %d: %v", line, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[cols[colY]]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y at line %d: %v", line, err)
		}

		i, ok := index[id]
		if !ok {
			i = len(trajectories)
			index[id] = i
			trajectories = append(trajectories, casa.Trajectory{ID: id})
		}
		t := &trajectories[i]
		t.Samples = append(t.Samples, casa.Sample{Frame: frame, X: x, Y: y})

		if hasMorph && t.Morphology == casa.MorphologyUnlabelled {
			t.Morphology = casa.Morphology(strings.ToLower(strings.TrimSpace(record[morphCol])))
		}
	}
	return trajectories, nil
}
