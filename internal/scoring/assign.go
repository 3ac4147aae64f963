package scoring

import "math"

// Assign solves the rectangular linear assignment problem exactly,
// minimizing total cost. It returns, for every row, the assigned column or
// -1 when the row is left unpaired (only possible when rows outnumber
// columns). Every row of cost must have the same length. NaN and
// infinite entries are treated as zero cost.
//
// The solver is the shortest augmenting path method with dual potentials
// (Hungarian / Jonker-Volgenant family), O(n²m) for n <= m.
func Assign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = -1
		}
		return out
	}
	cost = finite(cost)
	if n > m {
		colToRow := assignTall(transpose(cost))
		out := make([]int, n)
		for i := range out {
			out[i] = -1
		}
		for col, row := range colToRow {
			out[row] = col
		}
		return out
	}
	return assignTall(cost)
}

// assignTall handles n <= m, where every row gets a column.
func assignTall(cost [][]float64) []int {
	n, m := len(cost), len(cost[0])
	inf := math.Inf(1)

	// 1-based arrays; column 0 is a virtual source.
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	owner := make([]int, m+1)
	way := make([]int, m+1)
	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {
		owner[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := owner[j0]
			delta := inf
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if owner[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			owner[j0] = owner[j1]
			j0 = j1
		}
	}

	out := make([]int, n)
	for j := 1; j <= m; j++ {
		if owner[j] != 0 {
			out[owner[j]-1] = j - 1
		}
	}
	return out
}

func transpose(in [][]float64) [][]float64 {
	rows, cols := len(in), len(in[0])
	out := make([][]float64, cols)
	for j := range out {
		out[j] = make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[j][i] = in[i][j]
		}
	}
	return out
}

// finite returns cost with NaN and infinite entries replaced by zero,
// copying only when a replacement is needed.
func finite(cost [][]float64) [][]float64 {
	var out [][]float64
	for i, row := range cost {
		for j, c := range row {
			if !math.IsNaN(c) && !math.IsInf(c, 0) {
				continue
			}
			if out == nil {
				out = make([][]float64, len(cost))
				for k, r := range cost {
					out[k] = append([]float64(nil), r...)
				}
			}
			out[i][j] = 0
		}
	}
	if out == nil {
		return cost
	}
	return out
}
