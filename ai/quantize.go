// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import "math/bits"

// Quantize converts a float vector to a packed binary code: bit i is set
// when v_i > 0, packed MSB-first into ceil(dim/8) bytes. The transform is
// pure and stateless so retrievers can apply it independently of encoding.
func Quantize(vec []float32) []byte {
	code := make([]byte, QuantizedLen(len(vec)))
	for i, v := range vec {
		if v > 0 {
			code[i/8] |= 1 << (7 - uint(i)%8)
		}
	}
	return code
}

// QuantizedLen returns the packed size in bytes for a vector of dim elements.
func QuantizedLen(dim int) int {
	return (dim + 7) / 8
}

// Hamming counts differing bits between two packed binary codes.
// Codes of unequal length are compared over the shorter one.
func Hamming(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	count := 0
	for i := 0; i < n; i++ {
		count += bits.OnesCount8(a[i] ^ b[i])
	}
	return count
}
