package capture

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/labelocr/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

type pageImage struct {
	page  int
	index int
	image image.Image
}

// extractPageImages returns the first embedded image of every page in
// pageRange, ordered by page. Pages without images are skipped.
func extractPageImages(filename, pageRange string) ([]pageImage, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "labelocr-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}
	if err := api.ExtractImagesFile(filename, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	images, err := collectPageImages(tempDir, stem)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found in %s", filepath.Base(filename))
	}
	return images, nil
}

// collectPageImages loads the pdfcpu output files named
// <stem>_<page>_<object>.<ext> and keeps the lowest object index per page.
func collectPageImages(dir, stem string) ([]pageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	first := make(map[int]pageImage)
	for _, e := range entries {
		if e.IsDir() || !utils.IsSupportedImage(e.Name()) {
			continue
		}
		page, index, err := parseImageFilename(stem, e.Name())
		if err != nil {
			continue
		}
		if cur, ok := first[page]; ok && cur.index <= index {
			continue
		}
		img, _, err := utils.LoadImage(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		first[page] = pageImage{page: page, index: index, image: img}
	}

	out := make([]pageImage, 0, len(first))
	for _, p := range first {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].page < out[j].page })
	return out, nil
}

// parseImageFilename reads the page number and the trailing object index
// from a pdfcpu file name such as "label_01_Im3.png". Objects without a
// numeric suffix get index 0.
func parseImageFilename(stem, name string) (int, int, error) {
	rest, ok := strings.CutPrefix(strings.TrimSuffix(name, filepath.Ext(name)), stem+"_")
	if !ok {
		return 0, 0, errors.New("not a page image file")
	}
	pageField, object, _ := strings.Cut(rest, "_")
	page, err := strconv.Atoi(pageField)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page number %q", pageField)
	}
	digits := len(object)
	for digits > 0 && object[digits-1] >= '0' && object[digits-1] <= '9' {
		digits--
	}
	index, err := strconv.Atoi(object[digits:])
	if err != nil {
		index = 0
	}
	return page, index, nil
}

// parsePageRange parses "1-5", "1,3,5" or a mix. Empty means all pages.
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if before, after, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(before))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid start page: %s", before)
		}
		end, err := strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", after)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
