package balance

import (
	"hash/crc32"
	"sort"
	"strconv"
)

const DefaultVirtualNodes = 100

type ring struct {
	positions []uint32
	owners    map[uint32]string
}

func buildRing(nodes []string, vnodes int) *ring {
	if vnodes <= 0 {
		vnodes = DefaultVirtualNodes
	}
	r := &ring{
		positions: make([]uint32, 0, len(nodes)*vnodes),
		owners:    make(map[uint32]string, len(nodes)*vnodes),
	}

	for _, node := range nodes {
		for i := 0; i < vnodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(node + "#" + strconv.Itoa(i)))
			if _, taken := r.owners[hash]; taken {
				continue
			}
			r.positions = append(r.positions, hash)
			r.owners[hash] = node
		}
	}

	sort.Slice(r.positions, func(i, j int) bool { return r.positions[i] < r.positions[j] })
	return r
}

func (r *ring) owner(key string) string {
	if r == nil || len(r.positions) == 0 {
		return ""
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})
	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}
