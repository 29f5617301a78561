// Package encoder selects and drives the external ffmpeg encoder.
package encoder

// Profile is one candidate encoder configuration. Args covers only the video
// encoder portion of the ffmpeg command line; the runner supplies input,
// mapping, and audio handling.
type Profile struct {
	ID    string
	Label string
	Codec string
	Args  []string
}

// Registry returns the candidate profiles in selection priority order.
// Hardware encoders come first; libx265 is the always-present fallback.
func Registry() []Profile {
	return []Profile{
		{
			ID:    "hevc_nvenc",
			Label: "NVIDIA NVENC HEVC",
			Codec: "hevc",
			Args:  []string{"-c:v", "hevc_nvenc", "-preset", "p6", "-rc", "vbr", "-cq", "28", "-b:v", "0"},
		},
		{
			ID:    "hevc_qsv",
			Label: "Intel Quick Sync HEVC",
			Codec: "hevc",
			Args:  []string{"-c:v", "hevc_qsv", "-preset", "slower", "-global_quality", "28"},
		},
		{
			ID:    "hevc_videotoolbox",
			Label: "Apple VideoToolbox HEVC",
			Codec: "hevc",
			Args:  []string{"-c:v", "hevc_videotoolbox", "-q:v", "55", "-tag:v", "hvc1"},
		},
		{
			ID:    "libx265",
			Label: "Software x265",
			Codec: "hevc",
			Args:  []string{"-c:v", "libx265", "-preset", "medium", "-crf", "24"},
		},
	}
}
