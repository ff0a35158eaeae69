package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/wlkit/dmabuf"
)

// FormatsInfo represents the buffer format report in the JSON output
type FormatsInfo struct {
	Shm      []string       `json:"shm"`
	Dmabuf   []DmabufFormat `json:"dmabuf,omitempty"`
	Feedback *FeedbackInfo  `json:"dmabuf_feedback,omitempty"`
}

// DmabufFormat is one fourcc/modifier pair
type DmabufFormat struct {
	Format   string `json:"format"`
	Modifier string `json:"modifier"`
}

// FeedbackInfo summarizes v4 dmabuf feedback
type FeedbackInfo struct {
	MainDevice uint64        `json:"main_device"`
	Tranches   []TrancheInfo `json:"tranches"`
}

// TrancheInfo is one feedback tranche
type TrancheInfo struct {
	TargetDevice uint64 `json:"target_device"`
	Scanout      bool   `json:"scanout"`
	FormatCount  int    `json:"format_count"`
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Show supported buffer formats",
	Long:  `List the wl_shm pixel formats and, where available, the dmabuf formats and feedback tranches.`,
	RunE:  runFormats,
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func fourcc(f uint32) string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", f)
		}
	}
	return string(b[:])
}

func runFormats(cmd *cobra.Command, args []string) error {
	s, err := newSession(nil, nil)
	if err != nil {
		return err
	}
	defer s.close()

	var feedback *dmabuf.Feedback
	if s.dmabuf.Version() >= 4 {
		if fb, err := s.dmabuf.GetDefaultFeedback(nil); err == nil {
			feedback = fb
			// One more roundtrip for the feedback burst.
			if err := s.display.Roundtrip(); err != nil {
				return err
			}
		}
	}

	info := FormatsInfo{}
	for _, f := range s.shm.Formats() {
		info.Shm = append(info.Shm, f.String())
	}
	for _, f := range s.dmabuf.Formats() {
		info.Dmabuf = append(info.Dmabuf, DmabufFormat{
			Format:   fourcc(f.Format),
			Modifier: fmt.Sprintf("0x%016x", f.Modifier),
		})
	}
	if feedback != nil {
		if fb, ok := feedback.Info(); ok {
			fi := &FeedbackInfo{MainDevice: fb.MainDevice}
			for _, tr := range fb.Tranches {
				fi.Tranches = append(fi.Tranches, TrancheInfo{
					TargetDevice: tr.TargetDevice,
					Scanout:      tr.Flags&dmabuf.TrancheFlagScanout != 0,
					FormatCount:  len(tr.Formats),
				})
			}
			info.Feedback = fi
		}
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(info)
	}

	fmt.Printf("wl_shm formats (%d):\n", len(info.Shm))
	for _, f := range info.Shm {
		fmt.Printf("  %s\n", f)
	}
	if len(info.Dmabuf) > 0 {
		fmt.Printf("\ndmabuf formats (%d):\n", len(info.Dmabuf))
		for _, f := range info.Dmabuf {
			fmt.Printf("  %s %s\n", f.Format, f.Modifier)
		}
	}
	if info.Feedback != nil {
		fmt.Printf("\ndmabuf feedback: main device 0x%x\n", info.Feedback.MainDevice)
		for i, tr := range info.Feedback.Tranches {
			flag := ""
			if tr.Scanout {
				flag = " (scanout)"
			}
			fmt.Printf("  tranche %d: device 0x%x, %d formats%s\n", i, tr.TargetDevice, tr.FormatCount, flag)
		}
	}
	return nil
}
