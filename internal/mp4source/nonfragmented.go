package mp4source

import (
	"fmt"
	"io"
	"os"

	"github.com/tetsuo/mp4"

	"github.com/jmylchreest/mp42hls/internal/sample"
)

var (
	handlerVideo = [4]byte{'v', 'i', 'd', 'e'}
	handlerAudio = [4]byte{'s', 'o', 'u', 'n'}
)

// trackBuild accumulates one trak box's sample-table data while the moov
// tree is walked, before the interleaved sample list is built.
type trackBuild struct {
	id        uint32
	isVideo   bool
	isAudio   bool
	timescale uint32
	descIdx   uint32

	avcC []byte
	esds []byte

	stszData    []byte
	sttsData    []byte
	stscData    []byte
	cttsData    []byte
	cttsVersion uint8
	stssData    []byte
	stcoData    []byte
	co64Data    []byte
	hasCo64     bool
}

// openNonFragmented parses a moov box holding a populated moov/stbl sample
// table and returns a Movie backed by file-offset sample readers.
func openNonFragmented(f *os.File, moovBuf []byte) (*Movie, error) {
	mr := mp4.NewReader(moovBuf)
	if !mr.Next() || mr.Type() != mp4.TypeMoov {
		return nil, fmt.Errorf("mp4source: moov box not found")
	}

	var builds []*trackBuild
	mr.Enter()
	for mr.Next() {
		if mr.Type() == mp4.TypeTrak {
			tb := parseTrak(&mr)
			if tb != nil {
				builds = append(builds, tb)
			}
		}
	}
	mr.Exit()

	movie := &Movie{closeFn: f.Close}
	for _, tb := range builds {
		samples, err := buildSampleIndex(tb)
		if err != nil {
			return nil, fmt.Errorf("mp4source: track %d: %w", tb.id, err)
		}
		track := &nonFragmentedTrack{
			id:        tb.id,
			timescale: tb.timescale,
			samples:   samples,
			ra:        f,
			descIdx:   tb.descIdx,
		}

		switch {
		case tb.isVideo && movie.Video == nil:
			if tb.avcC == nil {
				return nil, fmt.Errorf("mp4source: video track %d missing avcC", tb.id)
			}
			vp, err := parseAvcC(tb.avcC)
			if err != nil {
				return nil, err
			}
			movie.Video = track
			movie.Codecs.Video = vp
		case tb.isAudio && movie.Audio == nil:
			if tb.esds == nil {
				return nil, fmt.Errorf("mp4source: audio track %d missing esds", tb.id)
			}
			ap, err := parseEsdsASC(tb.esds)
			if err != nil {
				return nil, err
			}
			movie.Audio = track
			movie.Codecs.Audio = ap
		}
	}

	if movie.Video == nil && movie.Audio == nil {
		return nil, fmt.Errorf("mp4source: no usable H.264/AAC tracks found")
	}
	return movie, nil
}

func parseTrak(mr *mp4.Reader) *trackBuild {
	tb := &trackBuild{}

	mr.Enter()
	defer mr.Exit()

	for mr.Next() {
		switch mr.Type() {
		case mp4.TypeTkhd:
			trackID, _, _, _ := mr.ReadTkhd()
			tb.id = trackID
		case mp4.TypeMdia:
			parseMdia(mr, tb)
		}
	}

	if tb.id == 0 || (!tb.isVideo && !tb.isAudio) {
		return nil
	}
	return tb
}

func parseMdia(mr *mp4.Reader, tb *trackBuild) {
	mr.Enter()
	defer mr.Exit()

	var handlerType [4]byte
	for mr.Next() {
		switch mr.Type() {
		case mp4.TypeMdhd:
			ts, _, _ := mr.ReadMdhd()
			tb.timescale = ts
		case mp4.TypeHdlr:
			handlerType = mr.ReadHdlr()
		case mp4.TypeMinf:
			parseMinf(mr, tb, handlerType)
		}
	}
}

func parseMinf(mr *mp4.Reader, tb *trackBuild, handlerType [4]byte) {
	mr.Enter()
	defer mr.Exit()

	for mr.Next() {
		if mr.Type() == mp4.TypeStbl {
			parseStbl(mr, tb, handlerType)
		}
	}
}

func parseStbl(mr *mp4.Reader, tb *trackBuild, handlerType [4]byte) {
	mr.Enter()
	defer mr.Exit()

	for mr.Next() {
		switch mr.Type() {
		case mp4.TypeStsd:
			parseStsd(mr, tb, handlerType)
		case mp4.TypeStsz:
			tb.stszData = mr.Data()
		case mp4.TypeStts:
			tb.sttsData = mr.Data()
		case mp4.TypeStsc:
			tb.stscData = mr.Data()
		case mp4.TypeCtts:
			tb.cttsData = mr.Data()
			tb.cttsVersion = mr.Version()
		case mp4.TypeStss:
			tb.stssData = mr.Data()
		case mp4.TypeStco:
			tb.stcoData = mr.Data()
		case mp4.TypeCo64:
			tb.co64Data = mr.Data()
			tb.hasCo64 = true
		}
	}

	if tb.stscData != nil {
		if entry, ok := mp4.NewStscIter(tb.stscData).Next(); ok {
			tb.descIdx = entry.SampleDescriptionId
		}
	}
}

func parseStsd(mr *mp4.Reader, tb *trackBuild, handlerType [4]byte) {
	data := mr.Data()
	if len(data) < 4 {
		return
	}

	mr.Enter()
	defer mr.Exit()
	mr.Skip(4)

	if !mr.Next() {
		return
	}
	entryType := mr.Type()

	switch {
	case handlerType == handlerVideo && entryType == mp4.TypeAvc1:
		tb.isVideo = true
		v := mp4.ReadVisualSampleEntry(mr.Data())
		mr.Enter()
		mr.Skip(v.ChildOffset)
		for mr.Next() {
			if mr.Type() == mp4.TypeAvcC {
				tb.avcC = append([]byte(nil), mr.Data()...)
				break
			}
		}
		mr.Exit()
	case handlerType == handlerAudio && entryType == mp4.TypeMp4a:
		tb.isAudio = true
		a := mp4.ReadAudioSampleEntry(mr.Data())
		mr.Enter()
		mr.Skip(a.ChildOffset)
		for mr.Next() {
			if mr.Type() == mp4.TypeEsds {
				tb.esds = append([]byte(nil), mr.Data()...)
				break
			}
		}
		mr.Exit()
	}
}

// buildSampleIndex interleaves a track's stsz/stts/stsc/ctts/stss/stco-or-
// co64 tables into an absolute-offset, absolute-DTS sample list.
func buildSampleIndex(tb *trackBuild) ([]sampleIndex, error) {
	if tb.stszData == nil || tb.sttsData == nil || tb.stscData == nil {
		return nil, fmt.Errorf("missing required sample table (stsz/stts/stsc)")
	}
	if tb.stcoData == nil && tb.co64Data == nil {
		return nil, fmt.Errorf("missing chunk offset table (stco/co64)")
	}

	stszIt := mp4.NewStszIter(tb.stszData)
	numSamples := int(stszIt.Count())
	if numSamples == 0 {
		return nil, nil
	}
	samples := make([]sampleIndex, numSamples)

	stscIt := mp4.NewStscIter(tb.stscData)
	sttsIt := mp4.NewSttsIter(tb.sttsData)

	hasCtts := tb.cttsData != nil
	var cttsIt mp4.CttsIter
	if hasCtts {
		cttsIt = mp4.NewCttsIter(tb.cttsData, tb.cttsVersion)
	}

	hasSync := tb.stssData != nil
	var syncIt mp4.Uint32Iter
	if hasSync {
		syncIt = mp4.NewUint32Iter(tb.stssData)
	}

	curStsc, ok := stscIt.Next()
	if !ok {
		return nil, fmt.Errorf("empty stsc table")
	}
	var nextStsc mp4.StscEntry
	haveNextStsc := false
	if e, ok := stscIt.Next(); ok {
		nextStsc = e
		haveNextStsc = true
	}

	curStts, ok := sttsIt.Next()
	if !ok {
		return nil, fmt.Errorf("empty stts table")
	}
	sttsRemaining := int(curStts.Count)

	var curCtts mp4.CttsEntry
	cttsRemaining := 0
	if hasCtts {
		if e, ok := cttsIt.Next(); ok {
			curCtts = e
			cttsRemaining = int(e.Count)
		}
	}

	var nextSync uint32
	haveSync := false
	if hasSync {
		if v, ok := syncIt.Next(); ok {
			nextSync = v
			haveSync = true
		}
	}

	var chunkOffset int64
	var chunkIdx uint32 = 1
	var stcoIt mp4.Uint32Iter
	var co64It mp4.Co64Iter
	if tb.hasCo64 {
		co64It = mp4.NewCo64Iter(tb.co64Data)
		if v, ok := co64It.Next(); ok {
			chunkOffset = int64(v)
		}
	} else {
		stcoIt = mp4.NewUint32Iter(tb.stcoData)
		if v, ok := stcoIt.Next(); ok {
			chunkOffset = int64(v)
		}
	}

	var sampleInChunk uint32
	var offsetInChunk int64
	var dts int64

	for i := 0; i < numSamples; i++ {
		size, ok := stszIt.Next()
		if !ok {
			return nil, fmt.Errorf("stsz iterator exhausted at sample %d/%d", i, numSamples)
		}

		var presOff int32
		if hasCtts && cttsRemaining > 0 {
			presOff = curCtts.Offset
		}

		isSync := true
		if hasSync {
			isSync = haveSync && nextSync == uint32(i+1)
		}

		samples[i] = sampleIndex{
			offset:   offsetInChunk + chunkOffset,
			size:     size,
			duration: curStts.Duration,
			dts:      dts,
			presOff:  presOff,
			isSync:   isSync,
		}

		if i+1 >= numSamples {
			break
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= curStsc.SamplesPerChunk {
			sampleInChunk = 0
			offsetInChunk = 0
			chunkIdx++
			if tb.hasCo64 {
				if v, ok := co64It.Next(); ok {
					chunkOffset = int64(v)
				}
			} else {
				if v, ok := stcoIt.Next(); ok {
					chunkOffset = int64(v)
				}
			}
			if haveNextStsc && chunkIdx >= nextStsc.FirstChunk {
				curStsc = nextStsc
				if e, ok := stscIt.Next(); ok {
					nextStsc = e
				} else {
					haveNextStsc = false
				}
			}
		}

		dts += int64(curStts.Duration)
		sttsRemaining--
		if sttsRemaining <= 0 {
			if e, ok := sttsIt.Next(); ok {
				curStts = e
				sttsRemaining = int(e.Count)
			}
		}

		if hasCtts {
			cttsRemaining--
			if cttsRemaining <= 0 {
				if e, ok := cttsIt.Next(); ok {
					curCtts = e
					cttsRemaining = int(e.Count)
				}
			}
		}

		if isSync && hasSync {
			if v, ok := syncIt.Next(); ok {
				nextSync = v
			} else {
				haveSync = false
			}
		}
	}

	return samples, nil
}

// sampleIndex is the resolved position of one sample within the source
// file, built once from the interleaved stsz/stts/stsc/stco tables.
type sampleIndex struct {
	offset   int64
	size     uint32
	duration uint32
	dts      int64
	presOff  int32
	isSync   bool
}

// nonFragmentedTrack pulls samples directly from absolute file offsets
// resolved ahead of time by buildSampleIndex.
type nonFragmentedTrack struct {
	id        uint32
	timescale uint32
	samples   []sampleIndex
	cursor    int
	ra        io.ReaderAt
	descIdx   uint32
}

func (t *nonFragmentedTrack) Next() (sample.Sample, error) {
	if t.cursor >= len(t.samples) {
		return sample.Sample{}, io.EOF
	}
	idx := t.samples[t.cursor]
	t.cursor++

	buf := make([]byte, idx.size)
	if _, err := t.ra.ReadAt(buf, idx.offset); err != nil {
		return sample.Sample{}, fmt.Errorf("mp4source: reading sample at offset %d: %w", idx.offset, err)
	}

	return sample.Sample{
		DTS:              idx.dts,
		PTS:              idx.dts + int64(idx.presOff),
		Timescale:        t.timescale,
		IsSync:           idx.isSync,
		DescriptionIndex: t.descIdx,
		Payload:          buf,
	}, nil
}
