// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video frame related abstractions.

package vqm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Metric names accepted by FrameMetrics.Values.
const (
	MetricVMAF   = "VMAF"
	MetricPSNR   = "PSNR"
	MetricMSSSIM = "MS-SSIM"
)

var ErrUnknownMetric = errors.New("unknown metric")

// FrameMetric contains VQMs for a single frame.
type FrameMetric struct {
	FrameNum uint
	VMAF     float64
	PSNR     float64
	MS_SSIM  float64
}

type FrameMetrics []FrameMetric

func (fm *FrameMetrics) FromJSON(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("FromJSON() Read from io.Reader: %w", err)
	}

	if err := json.Unmarshal(data, fm); err != nil {
		return fmt.Errorf("FromJSON() JSON unmarshal: %w", err)
	}

	return nil
}

// Values returns per-frame values of a single metric, name is matched case
// insensitively ("ms_ssim" is accepted for MS-SSIM).
func (fm FrameMetrics) Values(name string) ([]float64, error) {
	var pick func(FrameMetric) float64
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case MetricVMAF:
		pick = func(m FrameMetric) float64 { return m.VMAF }
	case MetricPSNR:
		pick = func(m FrameMetric) float64 { return m.PSNR }
	case MetricMSSSIM:
		pick = func(m FrameMetric) float64 { return m.MS_SSIM }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}

	values := make([]float64, 0, len(fm))
	for _, m := range fm {
		values = append(values, pick(m))
	}
	return values, nil
}

// FromFfmpegVMAF will Unmarshal libvmaf's JSON into FrameMetrics.
func (fm *FrameMetrics) FromFfmpegVMAF(jsonReader io.Reader) error {
	res, err := readResult(jsonReader)
	if err != nil {
		return fmt.Errorf("FromFfmpegVMAF() %w", err)
	}
	*fm = append(*fm, res.frameMetrics()...)
	return nil
}

func (fm *FrameMetrics) ToJSON(w io.Writer) error {
	jDoc, err := json.MarshalIndent(fm, "", "  ")
	if err != nil {
		return fmt.Errorf("ToJSON() marshal: %w", err)
	}

	if _, err := w.Write(jDoc); err != nil {
		return fmt.Errorf("ToJSON() write to Writer: %w", err)
	}

	return nil
}
