package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/agrisense/agripipe/pkg/errors"
	"github.com/agrisense/agripipe/pkg/models"
)

// LoadCalibration reads a per-sensor calibration table from a CSV file with
// columns sensor_id, offset, scale. The last row wins when a sensor appears
// more than once.
func LoadCalibration(path string) (models.CalibrationMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to open calibration file")
	}
	defer f.Close()
	return ReadCalibration(f)
}

// ReadCalibration parses a calibration table from r.
func ReadCalibration(r io.Reader) (models.CalibrationMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return models.CalibrationMap{}, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeSchema, errors.CodeSchemaCheckFailed,
			"failed to read calibration header")
	}

	index := map[string]int{}
	for i, name := range header {
		index[name] = i
	}
	for _, required := range []string{"sensor_id", "offset", "scale"} {
		if _, ok := index[required]; !ok {
			return nil, errors.NewSchemaViolation(errors.CodeMissingColumn,
				fmt.Sprintf("calibration file is missing column %q", required))
		}
	}

	calibration := models.CalibrationMap{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSchema, errors.CodeSchemaCheckFailed,
				"failed to read calibration row")
		}

		sensorID := record[index["sensor_id"]]
		offset, err := strconv.ParseFloat(record[index["offset"]], 64)
		if err != nil {
			return nil, errors.NewSchemaViolation(errors.CodeSchemaCheckFailed,
				fmt.Sprintf("invalid offset for sensor %q", sensorID))
		}
		scale, err := strconv.ParseFloat(record[index["scale"]], 64)
		if err != nil {
			return nil, errors.NewSchemaViolation(errors.CodeSchemaCheckFailed,
				fmt.Sprintf("invalid scale for sensor %q", sensorID))
		}

		calibration[sensorID] = models.CalibrationRecord{
			SensorID: sensorID,
			Offset:   offset,
			Scale:    scale,
		}
	}
	return calibration, nil
}
