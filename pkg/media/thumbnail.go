package media

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FrameExtractor 从视频文件截取一帧写入 outputPath
type FrameExtractor func(videoPath, outputPath string) error

// FirstFrame 用 ffmpeg 截取第一帧
func FirstFrame(videoPath, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return errors.WithMessage(err, "failed to create thumbnail dir")
	}
	err := ffmpeg.Input(videoPath).
		Output(outputPath, ffmpeg.KwArgs{
			"ss":      "00:00:00",
			"vframes": "1",
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		return errors.WithMessage(err, "failed to generate thumbnail")
	}
	return nil
}
