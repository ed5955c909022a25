package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/rushteam/movierec/core"
)

// GenreNames 是 MovieLens u.item 中类型标记位的固定顺序。
var GenreNames = []string{
	"unknown", "Action", "Adventure", "Animation", "Children's",
	"Comedy", "Crime", "Documentary", "Drama", "Fantasy",
	"Film-Noir", "Horror", "Musical", "Mystery", "Romance",
	"Sci-Fi", "Thriller", "War", "Western",
}

// movieFixedFields 是 u.item 中类型标记位之前的字段数：id|title|release|video_release|url
const movieFixedFields = 5

// ParseRatings 解析制表符分隔的评分记录：user_id \t item_id \t rating \t timestamp。
// 空行会被跳过；任何其他格式错误都会让整个文件不可用（返回 DATA_UNAVAILABLE）。
func ParseRatings(ctx context.Context, r io.Reader) ([]Rating, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []Rating
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		rt, err := parseRatingLine(text)
		if err != nil {
			return nil, malformed(fmt.Sprintf("ratings line %d", line), err)
		}
		out = append(out, rt)
	}
	if err := sc.Err(); err != nil {
		return nil, core.WrapDomainError(core.ModuleDataset, core.ErrorCodeDataUnavailable, "dataset: read ratings", err)
	}
	return out, nil
}

func parseRatingLine(text string) (Rating, error) {
	fields := strings.Split(text, "\t")
	if len(fields) != 4 {
		return Rating{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Rating{}, fmt.Errorf("user_id: %w", err)
	}
	itemID, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Rating{}, fmt.Errorf("item_id: %w", err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return Rating{}, fmt.Errorf("rating: %w", err)
	}
	if !core.ValidRating(value) {
		return Rating{}, fmt.Errorf("rating %v outside [1,5]", value)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return Rating{}, fmt.Errorf("timestamp: %w", err)
	}
	return Rating{UserID: userID, ItemID: itemID, Value: value, Timestamp: ts}, nil
}

// ParseMovies 解析 '|' 分隔、Latin-1 编码的物品元数据：
// item_id|title|release_date|video_release_date|url|flag_1|...|flag_19
// 标记位不足时缺失部分视为 0。
func ParseMovies(ctx context.Context, r io.Reader) (map[int64]Movie, error) {
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	out := make(map[int64]Movie)
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		mv, err := parseMovieLine(text)
		if err != nil {
			return nil, malformed(fmt.Sprintf("metadata line %d", line), err)
		}
		out[mv.ID] = mv
	}
	if err := sc.Err(); err != nil {
		return nil, core.WrapDomainError(core.ModuleDataset, core.ErrorCodeDataUnavailable, "dataset: read metadata", err)
	}
	return out, nil
}

func parseMovieLine(text string) (Movie, error) {
	fields := strings.Split(text, "|")
	if len(fields) < 2 {
		return Movie{}, fmt.Errorf("want at least 2 fields, got %d", len(fields))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Movie{}, fmt.Errorf("item_id: %w", err)
	}
	mv := Movie{ID: id, Title: fields[1], Genres: []string{}}
	if len(fields) > 2 {
		mv.ReleaseDate = fields[2]
	}
	if len(fields) > 3 {
		mv.VideoReleaseDate = fields[3]
	}
	if len(fields) > 4 {
		mv.URL = fields[4]
	}
	for i, g := range GenreNames {
		idx := movieFixedFields + i
		if idx >= len(fields) {
			break
		}
		if strings.TrimSpace(fields[idx]) == "1" {
			mv.Genres = append(mv.Genres, g)
		}
	}
	return mv, nil
}

func malformed(where string, err error) error {
	return core.WrapDomainError(core.ModuleDataset, core.ErrorCodeDataUnavailable, "dataset: malformed "+where, err)
}
