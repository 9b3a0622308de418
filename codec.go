package zumic

// codec.go converts internal/value.Value to and from the flat byte strings
// the AOF and snapshot formats store as a record's Val field. Every variant gets a
// one-byte kind tag followed by a type-specific body, so a SET record's
// payload round-trips through persistence without help from the command
// dispatch layer.
import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zumic/zumic/internal/hyperloglog"
	"github.com/zumic/zumic/internal/intset"
	"github.com/zumic/zumic/internal/sds"
	"github.com/zumic/zumic/internal/smarthash"
	"github.com/zumic/zumic/internal/value"
)

func putU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putU32(buf, uint32(len(b)))
	return append(buf, b...)
}

func encodeValueForPersistence(v value.Value) []byte {
	buf := []byte{byte(v.Kind)}
	switch v.Kind {
	case value.KindNull:
	case value.KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case value.KindInt:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.Int))
		buf = append(buf, tmp[:]...)
	case value.KindFloat:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Float))
		buf = append(buf, tmp[:]...)
	case value.KindStr:
		buf = putBytes(buf, v.Str.Bytes())
	case value.KindHash:
		var fields [][2][]byte
		if v.Hash != nil {
			v.Hash.Iter(func(field string, val []byte) {
				fields = append(fields, [2][]byte{[]byte(field), val})
			})
		}
		buf = putU32(buf, uint32(len(fields)))
		for _, f := range fields {
			buf = putBytes(buf, f[0])
			buf = putBytes(buf, f[1])
		}
	case value.KindList:
		var members [][]byte
		if v.List != nil {
			v.List.Iter(func(_ int64, member sds.SDS) { members = append(members, member.Bytes()) })
		}
		buf = putU32(buf, uint32(len(members)))
		for _, m := range members {
			buf = putBytes(buf, m)
		}
	case value.KindSet:
		hasIntset := byte(0)
		if v.Set != nil {
			hasIntset = 1
		}
		buf = append(buf, hasIntset)
		if v.Set != nil {
			var ints []int64
			v.Set.Iter(func(i int64) { ints = append(ints, i) })
			buf = putU32(buf, uint32(len(ints)))
			for _, i := range ints {
				var tmp [8]byte
				binary.BigEndian.PutUint64(tmp[:], uint64(i))
				buf = append(buf, tmp[:]...)
			}
		}
		buf = putU32(buf, uint32(len(v.StrSet)))
		for m := range v.StrSet {
			buf = putBytes(buf, []byte(m))
		}
	case value.KindZSet:
		var members []string
		scores := map[string]float64{}
		if v.ZSet != nil {
			v.ZSet.Range(func(member string, score float64) {
				members = append(members, member)
				scores[member] = score
			})
		}
		buf = putU32(buf, uint32(len(members)))
		for _, m := range members {
			buf = putBytes(buf, []byte(m))
			var tmp [8]byte
			binary.BigEndian.PutUint64(tmp[:], math.Float64bits(scores[m]))
			buf = append(buf, tmp[:]...)
		}
	case value.KindHLL:
		// internal/hyperloglog has no exported Marshal, so an HLL value is
		// written as a zero count and decodes to an empty sketch at the
		// default precision: persistence keeps the key's presence and Kind,
		// not its register state or precision.
		buf = putU32(buf, 0)
	case value.KindGeoSet:
		var points []value.GeoPoint
		if v.Geo != nil {
			for _, p := range v.Geo.Points {
				points = append(points, p)
			}
		}
		buf = putU32(buf, uint32(len(points)))
		for _, p := range points {
			buf = putBytes(buf, p.Member.Bytes())
			var tmp [16]byte
			binary.BigEndian.PutUint64(tmp[0:8], math.Float64bits(p.Longitude))
			binary.BigEndian.PutUint64(tmp[8:16], math.Float64bits(p.Latitude))
			buf = append(buf, tmp[:]...)
		}
	}
	return buf
}

func decodeValueFromPersistence(buf []byte) (value.Value, error) {
	if len(buf) == 0 {
		return value.Value{}, NewError(CodeDeserializationFailed, "empty value payload")
	}
	kind := value.Kind(buf[0])
	body := buf[1:]

	readU32 := func() (uint32, error) {
		if len(body) < 4 {
			return 0, NewError(CodeDeserializationFailed, "truncated length field")
		}
		n := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		return n, nil
	}
	readBytes := func() ([]byte, error) {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		if uint32(len(body)) < n {
			return nil, NewError(CodeDeserializationFailed, "truncated byte field")
		}
		b := body[:n]
		body = body[n:]
		return b, nil
	}

	switch kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBool:
		if len(body) < 1 {
			return value.Value{}, NewError(CodeDeserializationFailed, "truncated bool")
		}
		return value.FromBool(body[0] != 0), nil
	case value.KindInt:
		if len(body) < 8 {
			return value.Value{}, NewError(CodeDeserializationFailed, "truncated int")
		}
		return value.FromInt(int64(binary.BigEndian.Uint64(body[:8]))), nil
	case value.KindFloat:
		if len(body) < 8 {
			return value.Value{}, NewError(CodeDeserializationFailed, "truncated float")
		}
		return value.FromFloat(math.Float64frombits(binary.BigEndian.Uint64(body[:8]))), nil
	case value.KindStr:
		b, err := readBytes()
		if err != nil {
			return value.Value{}, err
		}
		return value.FromBytes(b), nil
	case value.KindHash:
		n, err := readU32()
		if err != nil {
			return value.Value{}, err
		}
		h := smarthash.New()
		for i := uint32(0); i < n; i++ {
			field, err := readBytes()
			if err != nil {
				return value.Value{}, err
			}
			val, err := readBytes()
			if err != nil {
				return value.Value{}, err
			}
			h.Insert(string(field), append([]byte{}, val...))
		}
		return value.Value{Kind: value.KindHash, Hash: h}, nil
	case value.KindList:
		n, err := readU32()
		if err != nil {
			return value.Value{}, err
		}
		l := value.NewList()
		for i := uint32(0); i < n; i++ {
			m, err := readBytes()
			if err != nil {
				return value.Value{}, err
			}
			l.PushBack(sds.FromBytes(m))
		}
		return value.Value{Kind: value.KindList, List: l}, nil
	case value.KindSet:
		if len(body) < 1 {
			return value.Value{}, NewError(CodeDeserializationFailed, "truncated set header")
		}
		hasIntset := body[0] != 0
		body = body[1:]

		var iset *intset.IntSet
		if hasIntset {
			n, err := readU32()
			if err != nil {
				return value.Value{}, err
			}
			iset = intset.New()
			for i := uint32(0); i < n; i++ {
				if len(body) < 8 {
					return value.Value{}, NewError(CodeDeserializationFailed, "truncated intset member")
				}
				iset.Insert(int64(binary.BigEndian.Uint64(body[:8])))
				body = body[8:]
			}
		}

		n, err := readU32()
		if err != nil {
			return value.Value{}, err
		}
		var strSet map[string]struct{}
		if n > 0 {
			strSet = make(map[string]struct{}, n)
			for i := uint32(0); i < n; i++ {
				m, err := readBytes()
				if err != nil {
					return value.Value{}, err
				}
				strSet[string(m)] = struct{}{}
			}
		}
		return value.Value{Kind: value.KindSet, Set: iset, StrSet: strSet}, nil
	case value.KindZSet:
		n, err := readU32()
		if err != nil {
			return value.Value{}, err
		}
		z := value.NewZSet()
		for i := uint32(0); i < n; i++ {
			m, err := readBytes()
			if err != nil {
				return value.Value{}, err
			}
			if len(body) < 8 {
				return value.Value{}, NewError(CodeDeserializationFailed, "truncated zset score")
			}
			score := math.Float64frombits(binary.BigEndian.Uint64(body[:8]))
			body = body[8:]
			z.Add(string(m), score)
		}
		return value.Value{Kind: value.KindZSet, ZSet: z}, nil
	case value.KindHLL:
		if _, err := readU32(); err != nil {
			return value.Value{}, err
		}
		return value.Value{Kind: value.KindHLL, HLL: hyperloglog.New()}, nil
	case value.KindGeoSet:
		n, err := readU32()
		if err != nil {
			return value.Value{}, err
		}
		g := value.NewGeoSet()
		for i := uint32(0); i < n; i++ {
			m, err := readBytes()
			if err != nil {
				return value.Value{}, err
			}
			if len(body) < 16 {
				return value.Value{}, NewError(CodeDeserializationFailed, "truncated geo point")
			}
			lon := math.Float64frombits(binary.BigEndian.Uint64(body[0:8]))
			lat := math.Float64frombits(binary.BigEndian.Uint64(body[8:16]))
			body = body[16:]
			member := sds.FromBytes(m)
			g.Points[member.String()] = value.GeoPoint{Member: member, Longitude: lon, Latitude: lat}
		}
		return value.Value{Kind: value.KindGeoSet, Geo: g}, nil
	default:
		return value.Value{}, NewError(CodeDeserializationFailed, fmt.Sprintf("unknown value kind %d", kind))
	}
}
