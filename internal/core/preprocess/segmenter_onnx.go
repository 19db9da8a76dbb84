package preprocess

import (
	"fmt"
	"image"

	"leaf-backend/internal/core/imaging"
	"leaf-backend/internal/core/onnxrt"

	"gocv.io/x/gocv"
	ort "github.com/yalue/onnxruntime_go"
)

const DefaultSegmenterSize = 320

var (
	segmenterMean = [3]float32{0.485, 0.456, 0.406}
	segmenterStd  = [3]float32{0.229, 0.224, 0.225}
)

// OnnxSegmenter runs a U2-Net style salient object model.
type OnnxSegmenter struct {
	session *ort.DynamicAdvancedSession
	input   string
	output  string
	size    int
}

// NewOnnxSegmenter opens the model at modelPath. The onnx environment must
// already be initialized through onnxrt.Init.
func NewOnnxSegmenter(modelPath string, size int) (*OnnxSegmenter, error) {
	if size <= 0 {
		size = DefaultSegmenterSize
	}
	inputs, outputs, err := onnxrt.Describe(modelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("segmenter %s must have one input and at least one output, found %d and %d", modelPath, len(inputs), len(outputs))
	}

	input, output := inputs[0].Name, outputs[0].Name
	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{input}, []string{output}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter session: %w", err)
	}

	return &OnnxSegmenter{session: session, input: input, output: output, size: size}, nil
}

func (s *OnnxSegmenter) Segment(rgb gocv.Mat) (gocv.Mat, error) {
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(rgb, &small, image.Pt(s.size, s.size), 0, 0, gocv.InterpolationLanczos4)

	pix, err := small.DataPtrUint8()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error reading resized image: %w", err)
	}

	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(s.size), int64(s.size)), SegmenterInput(pix, s.size))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("error creating segmenter input: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return gocv.NewMat(), fmt.Errorf("segmenter run error: %w", err)
	}
	_, pred, err := onnxrt.Float32Output(outputs[0])
	if err != nil {
		return gocv.NewMat(), err
	}
	if len(pred) < s.size*s.size {
		return gocv.NewMat(), fmt.Errorf("segmenter output has %d values, expected at least %d", len(pred), s.size*s.size)
	}

	mask, err := imaging.GrayMat(s.size, s.size, MaskFromPrediction(pred[:s.size*s.size]))
	if err != nil {
		return gocv.NewMat(), err
	}
	defer mask.Close()

	full := gocv.NewMat()
	gocv.Resize(mask, &full, image.Pt(rgb.Cols(), rgb.Rows()), 0, 0, gocv.InterpolationLanczos4)
	return full, nil
}

func (s *OnnxSegmenter) Close() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// SegmenterInput scales interleaved RGB pixels by their maximum, applies the
// ImageNet mean and std and lays them out as NCHW.
func SegmenterInput(pix []uint8, size int) []float32 {
	var maxVal uint8
	for _, v := range pix {
		if v > maxVal {
			maxVal = v
		}
	}
	scale := float32(maxVal)
	if scale < 1e-6 {
		scale = 1e-6
	}

	plane := size * size
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := float32(pix[3*i+c]) / scale
			out[c*plane+i] = (v - segmenterMean[c]) / segmenterStd[c]
		}
	}
	return out
}

// MaskFromPrediction min-max normalizes a saliency prediction into an 8-bit
// mask. A constant prediction has no foreground and yields zeros.
func MaskFromPrediction(pred []float32) []uint8 {
	out := make([]uint8, len(pred))
	if len(pred) == 0 {
		return out
	}
	mn, mx := pred[0], pred[0]
	for _, v := range pred {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	if mx <= mn {
		return out
	}
	for i, v := range pred {
		out[i] = uint8((v - mn) / (mx - mn) * 255)
	}
	return out
}
