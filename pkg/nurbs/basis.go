package nurbs

import "math"

// Epsilon is the knot comparison tolerance.
const Epsilon = 1e-10

// knotVec is a clamped, non-decreasing knot vector.
type knotVec []float64

func (kv knotVec) clone() knotVec {
	return append(knotVec(nil), kv...)
}

// span finds the knot span index of u (algorithm A2.1, Piegl & Tiller).
// n is the number of basis functions minus one.
func (kv knotVec) span(n, degree int, u float64) int {
	if u >= kv[n+1] {
		return n
	}
	if u <= kv[degree] {
		return degree
	}
	low, high := degree, n+1
	mid := (low + high) / 2
	for u < kv[mid] || u >= kv[mid+1] {
		if u < kv[mid] {
			high = mid
		} else {
			low = mid
		}
		mid = (low + high) / 2
	}
	return mid
}

// multiplicity counts the knots equal to u.
func (kv knotVec) multiplicity(u float64) int {
	m := 0
	for _, k := range kv {
		if math.Abs(k-u) < Epsilon {
			m++
		}
	}
	return m
}

// distinct returns the distinct knot values in order.
func (kv knotVec) distinct() []float64 {
	var out []float64
	for _, k := range kv {
		if len(out) == 0 || math.Abs(k-out[len(out)-1]) > Epsilon {
			out = append(out, k)
		}
	}
	return out
}

// valid reports whether kv is a clamped non-decreasing vector for the
// given degree and control point count.
func (kv knotVec) valid(degree, count int) bool {
	if degree < 1 || len(kv) != count+degree+1 || count < degree+1 {
		return false
	}
	for i := 1; i < len(kv); i++ {
		if kv[i] < kv[i-1]-Epsilon {
			return false
		}
	}
	for i := 1; i <= degree; i++ {
		if math.Abs(kv[i]-kv[0]) > Epsilon || math.Abs(kv[len(kv)-1-i]-kv[len(kv)-1]) > Epsilon {
			return false
		}
	}
	return kv[len(kv)-1]-kv[0] > Epsilon
}

// remap linearly maps kv from its own domain onto [a, b].
func (kv knotVec) remap(a, b float64) knotVec {
	lo, hi := kv[0], kv[len(kv)-1]
	out := make(knotVec, len(kv))
	s := (b - a) / (hi - lo)
	for i, k := range kv {
		out[i] = a + (k-lo)*s
	}
	out[0], out[len(out)-1] = a, b
	return out
}

// reversed mirrors kv within its domain.
func (kv knotVec) reversed() knotVec {
	lo, hi := kv[0], kv[len(kv)-1]
	out := make(knotVec, len(kv))
	for i := range kv {
		out[i] = lo + hi - kv[len(kv)-1-i]
	}
	return out
}

// basisFuns computes the non-vanishing basis functions at u
// (algorithm A2.2).
func basisFuns(i int, u float64, p int, kv knotVec) []float64 {
	n := make([]float64, p+1)
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	n[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = u - kv[i+1-j]
		right[j] = kv[i+j] - u
		saved := 0.0
		for r := 0; r < j; r++ {
			den := right[r+1] + left[j-r]
			temp := 0.0
			if den != 0 {
				temp = n[r] / den
			}
			n[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		n[j] = saved
	}
	return n
}

// dersBasisFuns computes the basis functions and their derivatives up to
// order d at u (algorithm A2.3). Rows above p are zero.
func dersBasisFuns(i int, u float64, p, d int, kv knotVec) [][]float64 {
	ders := zeros(d+1, p+1)
	nd := d
	if nd > p {
		nd = p
	}

	ndu := zeros(p+1, p+1)
	left := make([]float64, p+1)
	right := make([]float64, p+1)
	ndu[0][0] = 1
	for j := 1; j <= p; j++ {
		left[j] = u - kv[i+1-j]
		right[j] = kv[i+j] - u
		saved := 0.0
		for r := 0; r < j; r++ {
			ndu[j][r] = right[r+1] + left[j-r]
			temp := 0.0
			if ndu[j][r] != 0 {
				temp = ndu[r][j-1] / ndu[j][r]
			}
			ndu[r][j] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		ndu[j][j] = saved
	}
	for j := 0; j <= p; j++ {
		ders[0][j] = ndu[j][p]
	}

	a := zeros(2, p+1)
	for r := 0; r <= p; r++ {
		s1, s2 := 0, 1
		a[0][0] = 1
		for k := 1; k <= nd; k++ {
			d := 0.0
			rk, pk := r-k, p-k
			if r >= k {
				a[s2][0] = safeDiv(a[s1][0], ndu[pk+1][rk])
				d = a[s2][0] * ndu[rk][pk]
			}
			j1, j2 := 1, k-1
			if rk < -1 {
				j1 = -rk
			}
			if r-1 > pk {
				j2 = p - r
			}
			for j := j1; j <= j2; j++ {
				a[s2][j] = safeDiv(a[s1][j]-a[s1][j-1], ndu[pk+1][rk+j])
				d += a[s2][j] * ndu[rk+j][pk]
			}
			if r <= pk {
				a[s2][k] = safeDiv(-a[s1][k-1], ndu[pk+1][r])
				d += a[s2][k] * ndu[r][pk]
			}
			ders[k][r] = d
			s1, s2 = s2, s1
		}
	}

	acc := float64(p)
	for k := 1; k <= nd; k++ {
		for j := 0; j <= p; j++ {
			ders[k][j] *= acc
		}
		acc *= float64(p - k)
	}
	return ders
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func zeros(n, m int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, m)
	}
	return out
}

// binomial returns n choose k.
func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := 1.0
	for d := 1; d <= k; d++ {
		r *= float64(n-k+d) / float64(d)
	}
	return r
}

// refine inserts the knots x into a homogeneous control polygon
// (algorithm A5.4). x must be non-decreasing and inside the domain.
func refine(p int, kv knotVec, pts []hpoint, x []float64) (knotVec, []hpoint) {
	if len(x) == 0 {
		return kv.clone(), append([]hpoint(nil), pts...)
	}
	n := len(pts) - 1
	m := n + p + 1
	r := len(x) - 1
	a := kv.span(n, p, x[0])
	b := kv.span(n, p, x[r]) + 1

	q := make([]hpoint, n+r+2)
	ub := make(knotVec, m+r+2)
	for j := 0; j <= a-p; j++ {
		q[j] = pts[j]
	}
	for j := b - 1; j <= n; j++ {
		q[j+r+1] = pts[j]
	}
	for j := 0; j <= a; j++ {
		ub[j] = kv[j]
	}
	for j := b + p; j <= m; j++ {
		ub[j+r+1] = kv[j]
	}

	i := b + p - 1
	k := b + p + r
	for j := r; j >= 0; j-- {
		for x[j] <= kv[i] && i > a {
			q[k-p-1] = pts[i-p-1]
			ub[k] = kv[i]
			k--
			i--
		}
		q[k-p-1] = q[k-p]
		for l := 1; l <= p; l++ {
			ind := k - p + l
			alfa := ub[k+l] - x[j]
			if math.Abs(alfa) < Epsilon {
				q[ind-1] = q[ind]
				continue
			}
			alfa /= ub[k+l] - kv[i-p+l]
			q[ind-1] = q[ind-1].scale(alfa).add(q[ind].scale(1 - alfa))
		}
		ub[k] = x[j]
		k--
	}
	return ub, q
}

// splitKnots returns the knots to insert so that u reaches full
// multiplicity p+1.
func splitKnots(kv knotVec, p int, u float64) []float64 {
	s := kv.multiplicity(u)
	if s >= p+1 {
		return nil
	}
	out := make([]float64, p+1-s)
	for i := range out {
		out[i] = u
	}
	return out
}

// splitIndex returns the index of the first knot equal to u.
func splitIndex(kv knotVec, u float64) int {
	for i, k := range kv {
		if math.Abs(k-u) < Epsilon {
			return i
		}
	}
	return -1
}
