package camera

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

// execCommand is swapped in tests.
var execCommand = exec.Command

// DeviceInfo describes a V4L2 device.
type DeviceInfo struct {
	Path   string
	Name   string
	Driver string
}

// Camera streams MJPEG frames from a V4L2 device through ffmpeg.
type Camera struct {
	device     string
	width      int
	height     int
	mirror     bool
	deviceInfo DeviceInfo

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	isOpen bool
	index  int
}

// NewCamera creates a camera with a 640x480 default resolution.
func NewCamera() *Camera {
	return &Camera{width: 640, height: 480}
}

// SetResolution sets the capture size; it applies on the next Open.
func (c *Camera) SetResolution(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", width, height)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width, c.height = width, height
	return nil
}

// SetMirror flips every frame horizontally when enabled.
func (c *Camera) SetMirror(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = enabled
}

// Open starts streaming from device.
func (c *Camera) Open(device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isOpen {
		return nil
	}
	if strings.HasPrefix(device, "/dev/") {
		if _, err := os.Stat(device); err != nil {
			return fmt.Errorf("%w: %s", ErrCameraNotFound, device)
		}
	}

	c.device = device
	c.deviceInfo = c.getDeviceInfo()

	cmd := execCommand("ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", strconv.Itoa(c.width)+"x"+strconv.Itoa(c.height),
		"-i", device,
		"-f", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c.cmd = cmd
	c.stdout = stdout
	c.reader = bufio.NewReaderSize(stdout, 1<<16)
	c.isOpen = true
	c.index = 0

	logging.Component("camera").WithFields(logging.Fields{
		"device": device,
		"name":   c.deviceInfo.Name,
		"size":   fmt.Sprintf("%dx%d", c.width, c.height),
	}).Info("Camera opened")
	return nil
}

// IsOpen reports whether the camera is streaming.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// GetDeviceInfo returns what v4l2-ctl reported when the camera was opened.
func (c *Camera) GetDeviceInfo() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceInfo
}

// ReadFrame returns the next decoded frame of the stream.
func (c *Camera) ReadFrame() (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOpen {
		return nil, ErrCameraNotOpen
	}

	data, err := readJPEG(c.reader)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	if c.mirror {
		img = mirror(img)
	}

	frame := &Frame{Image: img, Index: c.index, Source: c.device, Timestamp: time.Now()}
	c.index++
	return frame, nil
}

// Close stops ffmpeg.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isOpen {
		return nil
	}
	c.isOpen = false

	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logging.Component("camera").WithError(err).Warn("Failed to stop ffmpeg")
		}
		_ = c.cmd.Wait()
	}
	c.cmd, c.stdout, c.reader = nil, nil, nil
	return nil
}

// readJPEG returns the bytes from the next SOI marker through its EOI marker.
// It returns io.EOF when the stream ends between frames.
func readJPEG(r *bufio.Reader) ([]byte, error) {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if prev == 0xFF && b == 0xD8 {
			break
		}
		prev = b
	}

	buf := []byte{0xFF, 0xD8}
	prev = 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = append(buf, b)
		if prev == 0xFF && b == 0xD9 {
			return buf, nil
		}
		prev = b
	}
}

func (c *Camera) getDeviceInfo() DeviceInfo {
	info := DeviceInfo{Path: c.device, Name: c.device}

	out, err := execCommand("v4l2-ctl", "-d", c.device, "--info").Output()
	if err != nil {
		return info
	}

	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Driver name":
			info.Driver = strings.TrimSpace(value)
		case "Card type":
			info.Name = strings.TrimSpace(value)
		}
	}
	return info
}
