package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/logging"
)

const pigoCascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

var (
	downloadDlib  bool
	downloadForce bool
)

var downloadCmd = &cobra.Command{
	Use:   "download-cascade",
	Short: "Download the face detection cascade (and optionally the dlib models)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload()
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&downloadDlib, "dlib", false, "Also download the dlib models for the dlib backend")
	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "Download even if the file exists")
	rootCmd.AddCommand(downloadCmd)
}

type download struct {
	Name string
	URL  string
	Path string
}

func downloads() []download {
	list := []download{{
		Name: "facefinder",
		URL:  pigoCascadeURL,
		Path: cfg.Detector.CascadeFile,
	}}
	if !downloadDlib {
		return list
	}

	models := []struct {
		Name string
		URL  string
	}{
		{
			Name: "shape_predictor_5_face_landmarks.dat",
			URL:  "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
		},
		{
			Name: "dlib_face_recognition_resnet_model_v1.dat",
			URL:  "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
		},
		{
			Name: "mmod_human_face_detector.dat",
			URL:  "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
		},
	}
	for _, m := range models {
		list = append(list, download{Name: m.Name, URL: m.URL, Path: filepath.Join(cfg.Detector.ModelPath, m.Name)})
	}
	return list
}

func runDownload() error {
	for _, d := range downloads() {
		if _, err := os.Stat(d.Path); err == nil && !downloadForce {
			logging.Infof("%s already exists, skipping", d.Name)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", d.Name, err)
		}

		logging.Infof("Downloading %s...", d.Name)
		if err := fetch(d.URL, d.Path); err != nil {
			return fmt.Errorf("failed to download %s: %w", d.Name, err)
		}
		logging.Infof("Successfully downloaded %s to %s", d.Name, d.Path)
	}

	fmt.Println("All files downloaded successfully!")
	return nil
}

// fetch downloads url to targetPath, decompressing .bz2 payloads. The file is
// written under a temporary name and renamed once complete.
func fetch(url, targetPath string) error {
	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp := targetPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(targetPath))
	var body io.Reader = io.TeeReader(resp.Body, bar)
	if strings.HasSuffix(url, ".bz2") {
		body = bzip2.NewReader(body)
	}

	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, targetPath)
}
