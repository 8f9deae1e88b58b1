package metadata

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/wheelhouse-dev/wheelhouse/internal/requirement"
)

// WheelInfo holds all the information kept in the name of a wheel file.
type WheelInfo struct {
	Name      string
	Version   string
	BuildTag  WheelBuildTag
	Platforms []PEP425Tag
}

// WheelBuildTag holds the components of a wheel's optional build tag.
type WheelBuildTag struct {
	Num int
	Tag string
}

// PEP425Tag holds a compatibility tag defined in PEP 425.
type PEP425Tag struct {
	Python   string
	ABI      string
	Platform string
}

// ParseWheelName extracts all the information in the name of a wheel. The
// naming format is described in PEP 427
// (https://peps.python.org/pep-0427/#file-name-convention). The name is
// canonicalized where possible.
func ParseWheelName(name string) (*WheelInfo, error) {
	if !strings.HasSuffix(name, ".whl") {
		return nil, fmt.Errorf("not a wheel filename: %q", name)
	}
	name = name[:len(name)-4]
	parts := strings.Split(name, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return nil, fmt.Errorf("wheel name %q has %d elements, not 5 or 6", name, len(parts))
	}
	wi := &WheelInfo{
		Name:    requirement.CanonPackageName(parts[0]),
		Version: parts[1],
	}
	if len(parts) == 6 {
		buildTag := parts[2]
		split := strings.IndexFunc(buildTag, func(r rune) bool {
			return !unicode.IsDigit(r)
		})
		if split == 0 {
			return nil, fmt.Errorf("invalid wheel name %q: build tag %q does not start with a digit", name, buildTag)
		} else if split == -1 {
			split = len(buildTag)
		}
		num, err := strconv.Atoi(buildTag[:split])
		if err != nil {
			return nil, fmt.Errorf("invalid wheel name %q: %v", name, err)
		}
		wi.BuildTag.Num = num
		wi.BuildTag.Tag = buildTag[split:]
	}
	tag := PEP425Tag{
		Python:   parts[len(parts)-3],
		ABI:      parts[len(parts)-2],
		Platform: parts[len(parts)-1],
	}
	wi.Platforms = expandPEP425Tag(tag)
	return wi, nil
}

// WheelMetadata extracts the metadata from a wheel file. The format is
// defined in PEP 427; wheels cannot have a setup.py/setup.cfg, so the
// METADATA file is the only place dependencies can be declared.
func WheelMetadata(ctx context.Context, r io.ReaderAt, size int64) (*Metadata, error) {
	var meta *Metadata
	err := walkZipFiles(r, size, func(name string, r io.Reader) error {
		dir, name, ok := strings.Cut(name, "/")
		if !ok {
			return nil
		}
		if !strings.HasSuffix(dir, ".dist-info") {
			return nil
		}
		if name != "METADATA" {
			return nil
		}
		if meta != nil {
			return UnsupportedError{Msg: "multiple METADATA files", PackageType: "wheel"}
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		md, err := Parse(ctx, string(b))
		if err != nil {
			return err
		}
		meta = &md
		return nil
	})
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, UnsupportedError{Msg: "no METADATA file", PackageType: "wheel"}
	}
	return meta, nil
}

// expandPEP425Tag expands any compressed tag sets in tag to produce the full
// set of supported systems, per PEP 425's compressed-tag-set rule. This can
// produce impossible combinations that no real Python implementation uses.
func expandPEP425Tag(tag PEP425Tag) []PEP425Tag {
	var all []PEP425Tag
	for _, py := range strings.Split(tag.Python, ".") {
		for _, abi := range strings.Split(tag.ABI, ".") {
			for _, plat := range strings.Split(tag.Platform, ".") {
				all = append(all, PEP425Tag{Python: py, ABI: abi, Platform: plat})
			}
		}
	}
	return all
}

// walkZipFiles walks through the files in a zip archive, applying callback
// to each one in turn. There is no way to avoid loading a whole entry into
// memory: zip files store their file listing at the end.
func walkZipFiles(r io.ReaderAt, size int64, callback func(string, io.Reader) error) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := callback(f.Name, rc); err != nil {
			rc.Close()
			return err
		}
		if err := rc.Close(); err != nil {
			return err
		}
	}
	return nil
}
