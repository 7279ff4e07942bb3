package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte range.
type Range struct {
	Start int64
	End   int64
}

func (r Range) ContentLength() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange parses a Range header against a resource of size bytes. An empty
// header yields nil. Only the first range of a multi-range request is used;
// browsers seeking in a media element only ever send one.
func ParseRange(header string, size int64) (*Range, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	set, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(set, ","); multi {
		set = first
	}
	set = strings.TrimSpace(set)

	startText, endText, ok := strings.Cut(set, "-")
	if !ok || strings.Contains(endText, "-") {
		return nil, ErrInvalidRange
	}

	var start, end int64
	if startText == "" {
		suffix, err := strconv.ParseInt(endText, 10, 64)
		if err != nil || suffix <= 0 {
			return nil, ErrInvalidRange
		}
		start = max(size-suffix, 0)
		end = size - 1
	} else {
		var err error
		start, err = strconv.ParseInt(startText, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end = size - 1
		if endText != "" {
			end, err = strconv.ParseInt(endText, 10, 64)
			if err != nil {
				return nil, ErrInvalidRange
			}
		}
	}

	if start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}
