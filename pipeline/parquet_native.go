package pipeline

import (
	"fmt"
	"math"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetStartLayout keeps the unformatted local start time next to the
// display column.
const parquetStartLayout = "2006-01-02T15:04:05"

type derivedParquetRow struct {
	StartDateLocal    string  `parquet:"name=start_date_local, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartFormatted    string  `parquet:"name=start_date_local_formatted, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name              string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	SportType         string  `parquet:"name=sport_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DistanceMiles     float64 `parquet:"name=distance_miles, type=DOUBLE"`
	MovingTimeMinutes float64 `parquet:"name=moving_time_minutes, type=DOUBLE"`
	ElevationGainFeet float64 `parquet:"name=elevation_gain_feet, type=DOUBLE"`
	AverageHeartrate  float64 `parquet:"name=average_heartrate, type=DOUBLE"`
	MaxHeartrate      float64 `parquet:"name=max_heartrate, type=DOUBLE"`
	HRRatio           float64 `parquet:"name=hr_ratio, type=DOUBLE"`
	HRZone            *int32  `parquet:"name=hr_zone, type=INT32, repetitiontype=OPTIONAL"`
	TRIMP             float64 `parquet:"name=trimp, type=DOUBLE"`
	PaceMinPerMile    float64 `parquet:"name=pace_min_per_mile, type=DOUBLE"`
	PaceFormatted     *string `parquet:"name=pace_formatted, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ID                string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func marshalDerivedParquet(records []DerivedRecord) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(derivedParquetRow), 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range records {
		row := derivedParquetRow{
			StartDateLocal:    r.StartDateLocal.Format(parquetStartLayout),
			StartFormatted:    r.StartDateLocalFormatted,
			Name:              r.Name,
			SportType:         r.SportType,
			DistanceMiles:     valueOrNaN(r.DistanceMiles),
			MovingTimeMinutes: r.MovingTimeMinutes,
			ElevationGainFeet: valueOrNaN(r.ElevationGainFeet),
			AverageHeartrate:  r.AverageHeartrate,
			MaxHeartrate:      valueOrNaN(r.MaxHeartrate),
			HRRatio:           r.HRRatio,
			TRIMP:             r.TRIMP,
			PaceMinPerMile:    valueOrNaN(r.PaceMinPerMile),
			PaceFormatted:     r.PaceFormatted,
			ID:                r.ID,
		}
		if r.HRZone != nil {
			z := int32(*r.HRZone)
			row.HRZone = &z
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func unmarshalDerivedParquet(data []byte) ([]DerivedRecord, error) {
	fr := parquetbuffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(derivedParquetRow), 1)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]derivedParquetRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, err
		}
	}

	out := make([]DerivedRecord, 0, n)
	for i, row := range rows {
		ts, err := time.Parse(parquetStartLayout, row.StartDateLocal)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse start_date_local %q: %w", i+1, row.StartDateLocal, err)
		}
		rec := DerivedRecord{
			StartDateLocal:          ts,
			StartDateLocalFormatted: row.StartFormatted,
			Name:                    row.Name,
			SportType:               row.SportType,
			DistanceMiles:           nanToNil(row.DistanceMiles),
			MovingTimeMinutes:       row.MovingTimeMinutes,
			ElevationGainFeet:       nanToNil(row.ElevationGainFeet),
			AverageHeartrate:        row.AverageHeartrate,
			MaxHeartrate:            nanToNil(row.MaxHeartrate),
			HRRatio:                 row.HRRatio,
			TRIMP:                   row.TRIMP,
			PaceMinPerMile:          nanToNil(row.PaceMinPerMile),
			PaceFormatted:           row.PaceFormatted,
			ID:                      row.ID,
		}
		if row.HRZone != nil {
			z := int(*row.HRZone)
			rec.HRZone = &z
		}
		out = append(out, rec)
	}
	return out, nil
}

func nanToNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
