package catalog

import (
	"fmt"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// builtinVariant describes one YOLO11 scale within a family.
type builtinVariant struct {
	scale  string
	params string
}

// builtinFamily describes one task family of the built-in YOLO11 line-up.
type builtinFamily struct {
	suffix   string // filename suffix after the scale, "" for detection
	label    string // display label appended to the model name
	tasks    []task.Type
	variants []builtinVariant
}

var builtinFamilies = []builtinFamily{
	{
		suffix: "",
		label:  "",
		tasks:  []task.Type{task.Detection},
		variants: []builtinVariant{
			{"n", "2.6M"}, {"s", "9.4M"}, {"m", "20.1M"}, {"l", "25.3M"}, {"x", "56.9M"},
		},
	},
	{
		suffix: "-cls",
		label:  "Classification",
		tasks:  []task.Type{task.Classification},
		variants: []builtinVariant{
			{"n", "1.6M"}, {"s", "5.5M"}, {"m", "10.4M"}, {"l", "12.9M"}, {"x", "28.4M"},
		},
	},
	{
		suffix: "-seg",
		label:  "Segmentation",
		tasks:  []task.Type{task.Segmentation, task.InstanceSegmentation},
		variants: []builtinVariant{
			{"n", "2.9M"}, {"s", "10.1M"}, {"m", "22.4M"}, {"l", "27.6M"}, {"x", "62.1M"},
		},
	},
	{
		suffix: "-pose",
		label:  "Pose",
		tasks:  []task.Type{task.Keypoint},
		variants: []builtinVariant{
			{"n", "2.9M"}, {"s", "9.9M"}, {"m", "20.9M"}, {"l", "26.2M"}, {"x", "58.8M"},
		},
	},
	{
		suffix: "-obb",
		label:  "OBB",
		tasks:  []task.Type{task.OrientedDetection},
		variants: []builtinVariant{
			{"n", "2.7M"}, {"s", "9.7M"}, {"m", "20.9M"}, {"l", "26.2M"}, {"x", "58.8M"},
		},
	},
}

// BuiltinModels returns the YOLO11 catalog seeded into every aggregator.
func BuiltinModels() []ModelInfo {
	var out []ModelInfo
	for _, fam := range builtinFamilies {
		for _, v := range fam.variants {
			name := fmt.Sprintf("YOLO11%s", v.scale)
			if fam.label != "" {
				name = fmt.Sprintf("YOLO11%s %s", v.scale, fam.label)
			}
			out = append(out, ModelInfo{
				Name:        name,
				Filename:    fmt.Sprintf("yolo11%s%s.pt", v.scale, fam.suffix),
				Parameters:  v.params,
				Tasks:       append([]task.Type(nil), fam.tasks...),
				Description: fmt.Sprintf("Ultralytics YOLO11 %s scale, %s parameters", v.scale, v.params),
			})
		}
	}
	return out
}
