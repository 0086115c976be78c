package autodiff

import (
	"fmt"
	"math"

	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Operations follow a batch-major convention: 2-D tensors are
// [rows=batch, cols=features]. Time-major sequences are slices of such
// tensors, one per timestep.

// MatMul computes a @ b for a [m,k] and b [k,n].
func (t *Tape) MatMul(a, b *tensor.Tensor) *tensor.Tensor {
	m, k := a.Rows(), a.Cols()
	k2, n := b.Rows(), b.Cols()
	if k != k2 {
		panic(fmt.Sprintf("MatMul: inner dimensions misaligned: %v @ %v", a.Shape(), b.Shape()))
	}
	out := tensor.New(tensor.Shape{m, n})
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			av := ad[i*k+l]
			if av == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				od[i*n+j] += av * bd[l*n+j]
			}
		}
	}
	t.Record(func() {
		ag, bg, og := a.Grad(), b.Grad(), out.Grad()
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				g := og[i*n+j]
				if g == 0 {
					continue
				}
				for l := 0; l < k; l++ {
					ag[i*k+l] += bd[l*n+j] * g
					bg[l*n+j] += ad[i*k+l] * g
				}
			}
		}
	})
	return out
}

// Add computes the element-wise sum of two tensors of identical shape.
func (t *Tape) Add(a, b *tensor.Tensor) *tensor.Tensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("Add: shape mismatch: %v vs %v", a.Shape(), b.Shape()))
	}
	out := tensor.New(a.Shape())
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := range od {
		od[i] = ad[i] + bd[i]
	}
	t.Record(func() {
		ag, bg, og := a.Grad(), b.Grad(), out.Grad()
		for i := range og {
			ag[i] += og[i]
			bg[i] += og[i]
		}
	})
	return out
}

// AddBias adds a bias vector [c] to every row of m [r,c].
func (t *Tape) AddBias(m, bias *tensor.Tensor) *tensor.Tensor {
	r, c := m.Rows(), m.Cols()
	if bias.NumElements() != c {
		panic(fmt.Sprintf("AddBias: bias %v does not match columns of %v", bias.Shape(), m.Shape()))
	}
	out := tensor.New(tensor.Shape{r, c})
	md, bd, od := m.Data(), bias.Data(), out.Data()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			od[i*c+j] = md[i*c+j] + bd[j]
		}
	}
	t.Record(func() {
		mg, bg, og := m.Grad(), bias.Grad(), out.Grad()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := og[i*c+j]
				mg[i*c+j] += g
				bg[j] += g
			}
		}
	})
	return out
}

// Mul computes the element-wise product of two tensors of identical shape.
func (t *Tape) Mul(a, b *tensor.Tensor) *tensor.Tensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("Mul: shape mismatch: %v vs %v", a.Shape(), b.Shape()))
	}
	out := tensor.New(a.Shape())
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := range od {
		od[i] = ad[i] * bd[i]
	}
	t.Record(func() {
		ag, bg, og := a.Grad(), b.Grad(), out.Grad()
		for i := range og {
			ag[i] += bd[i] * og[i]
			bg[i] += ad[i] * og[i]
		}
	})
	return out
}

// OneMinus computes 1 - x element-wise. Used by the GRU update gate.
func (t *Tape) OneMinus(a *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(a.Shape())
	ad, od := a.Data(), out.Data()
	for i := range od {
		od[i] = 1 - ad[i]
	}
	t.Record(func() {
		ag, og := a.Grad(), out.Grad()
		for i := range og {
			ag[i] -= og[i]
		}
	})
	return out
}

// Scale multiplies every element by a constant.
func (t *Tape) Scale(a *tensor.Tensor, s float32) *tensor.Tensor {
	out := tensor.New(a.Shape())
	ad, od := a.Data(), out.Data()
	for i := range od {
		od[i] = ad[i] * s
	}
	t.Record(func() {
		ag, og := a.Grad(), out.Grad()
		for i := range og {
			ag[i] += s * og[i]
		}
	})
	return out
}

// Tanh applies the hyperbolic tangent element-wise.
func (t *Tape) Tanh(a *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(a.Shape())
	ad, od := a.Data(), out.Data()
	for i := range od {
		od[i] = float32(math.Tanh(float64(ad[i])))
	}
	t.Record(func() {
		ag, og := a.Grad(), out.Grad()
		for i := range og {
			ag[i] += (1 - od[i]*od[i]) * og[i]
		}
	})
	return out
}

// Sigmoid applies the logistic function element-wise.
func (t *Tape) Sigmoid(a *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(a.Shape())
	ad, od := a.Data(), out.Data()
	for i := range od {
		od[i] = float32(1.0 / (1.0 + math.Exp(-float64(ad[i]))))
	}
	t.Record(func() {
		ag, og := a.Grad(), out.Grad()
		for i := range og {
			ag[i] += od[i] * (1 - od[i]) * og[i]
		}
	})
	return out
}

// ConcatCols concatenates two 2-D tensors along the column dimension:
// [r,p] ++ [r,q] -> [r,p+q].
func (t *Tape) ConcatCols(a, b *tensor.Tensor) *tensor.Tensor {
	r, p := a.Rows(), a.Cols()
	r2, q := b.Rows(), b.Cols()
	if r != r2 {
		panic(fmt.Sprintf("ConcatCols: row mismatch: %v vs %v", a.Shape(), b.Shape()))
	}
	out := tensor.New(tensor.Shape{r, p + q})
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := 0; i < r; i++ {
		copy(od[i*(p+q):i*(p+q)+p], ad[i*p:(i+1)*p])
		copy(od[i*(p+q)+p:(i+1)*(p+q)], bd[i*q:(i+1)*q])
	}
	t.Record(func() {
		ag, bg, og := a.Grad(), b.Grad(), out.Grad()
		for i := 0; i < r; i++ {
			for j := 0; j < p; j++ {
				ag[i*p+j] += og[i*(p+q)+j]
			}
			for j := 0; j < q; j++ {
				bg[i*q+j] += og[i*(p+q)+p+j]
			}
		}
	})
	return out
}

// Rows gathers rows of a table [V,d] by index, producing [len(ids), d].
// This is the embedding lookup; its backward pass scatter-adds row
// gradients back into the table.
// Panics if any index is out of bounds.
func (t *Tape) Rows(table *tensor.Tensor, ids []int) *tensor.Tensor {
	v, d := table.Rows(), table.Cols()
	out := tensor.New(tensor.Shape{len(ids), d})
	td, od := table.Data(), out.Data()
	for i, id := range ids {
		if id < 0 || id >= v {
			panic(fmt.Sprintf("Rows: index %d out of bounds for table with %d rows", id, v))
		}
		copy(od[i*d:(i+1)*d], td[id*d:(id+1)*d])
	}
	idsCopy := make([]int, len(ids))
	copy(idsCopy, ids)
	t.Record(func() {
		tg, og := table.Grad(), out.Grad()
		for i, id := range idsCopy {
			for j := 0; j < d; j++ {
				tg[id*d+j] += og[i*d+j]
			}
		}
	})
	return out
}

// Where selects rows from a where cond is true and from b otherwise.
// Both tensors must be [r,c] with len(cond) == r. Gradients route to
// whichever input supplied each row. Used to hold recurrent state constant
// for samples whose sequence has ended.
func (t *Tape) Where(cond []bool, a, b *tensor.Tensor) *tensor.Tensor {
	r, c := a.Rows(), a.Cols()
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("Where: shape mismatch: %v vs %v", a.Shape(), b.Shape()))
	}
	if len(cond) != r {
		panic(fmt.Sprintf("Where: condition length %d does not match %d rows", len(cond), r))
	}
	out := tensor.New(tensor.Shape{r, c})
	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := 0; i < r; i++ {
		src := bd
		if cond[i] {
			src = ad
		}
		copy(od[i*c:(i+1)*c], src[i*c:(i+1)*c])
	}
	condCopy := make([]bool, r)
	copy(condCopy, cond)
	t.Record(func() {
		ag, bg, og := a.Grad(), b.Grad(), out.Grad()
		for i := 0; i < r; i++ {
			dst := bg
			if condCopy[i] {
				dst = ag
			}
			for j := 0; j < c; j++ {
				dst[i*c+j] += og[i*c+j]
			}
		}
	})
	return out
}

// Blend computes an attention-weighted mixture of a timestep sequence:
// out[b] = Σ_t weights[b,t] · seq[t][b]. weights is [r,T] and every element
// of seq is [r,d].
func (t *Tape) Blend(weights *tensor.Tensor, seq []*tensor.Tensor) *tensor.Tensor {
	r, steps := weights.Rows(), weights.Cols()
	if steps != len(seq) {
		panic(fmt.Sprintf("Blend: %d weight columns for %d timesteps", steps, len(seq)))
	}
	if steps == 0 {
		panic("Blend: empty sequence")
	}
	d := seq[0].Cols()
	out := tensor.New(tensor.Shape{r, d})
	wd, od := weights.Data(), out.Data()
	for ts, m := range seq {
		if m.Rows() != r || m.Cols() != d {
			panic(fmt.Sprintf("Blend: timestep %d has shape %v, want [%d %d]", ts, m.Shape(), r, d))
		}
		md := m.Data()
		for b := 0; b < r; b++ {
			w := wd[b*steps+ts]
			if w == 0 {
				continue
			}
			for j := 0; j < d; j++ {
				od[b*d+j] += w * md[b*d+j]
			}
		}
	}
	t.Record(func() {
		wg, og := weights.Grad(), out.Grad()
		for ts, m := range seq {
			md, mg := m.Data(), m.Grad()
			for b := 0; b < r; b++ {
				w := wd[b*steps+ts]
				var dw float32
				for j := 0; j < d; j++ {
					g := og[b*d+j]
					dw += md[b*d+j] * g
					mg[b*d+j] += w * g
				}
				wg[b*steps+ts] += dw
			}
		}
	})
	return out
}

// StackCols stacks T column vectors [r,1] into a single [r,T] tensor.
// Used to assemble per-timestep attention scores.
func (t *Tape) StackCols(cols []*tensor.Tensor) *tensor.Tensor {
	if len(cols) == 0 {
		panic("StackCols: empty input")
	}
	r := cols[0].Rows()
	steps := len(cols)
	out := tensor.New(tensor.Shape{r, steps})
	od := out.Data()
	for ts, col := range cols {
		if col.Rows() != r || col.Cols() != 1 {
			panic(fmt.Sprintf("StackCols: column %d has shape %v, want [%d 1]", ts, col.Shape(), r))
		}
		cd := col.Data()
		for b := 0; b < r; b++ {
			od[b*steps+ts] = cd[b]
		}
	}
	t.Record(func() {
		og := out.Grad()
		for ts, col := range cols {
			cg := col.Grad()
			for b := 0; b < r; b++ {
				cg[b] += og[b*steps+ts]
			}
		}
	})
	return out
}

// MaskedSoftmax computes a row-wise softmax over the first lengths[b]
// columns of scores [r,T]; columns at or beyond a row's length get
// probability zero. A row with length <= 0 is left entirely zero.
func (t *Tape) MaskedSoftmax(scores *tensor.Tensor, lengths []int) *tensor.Tensor {
	r, cols := scores.Rows(), scores.Cols()
	if len(lengths) != r {
		panic(fmt.Sprintf("MaskedSoftmax: %d lengths for %d rows", len(lengths), r))
	}
	out := tensor.New(tensor.Shape{r, cols})
	sd, od := scores.Data(), out.Data()
	valid := make([]int, r)
	for b := 0; b < r; b++ {
		n := lengths[b]
		if n > cols {
			n = cols
		}
		valid[b] = n
		if n <= 0 {
			continue
		}
		row := sd[b*cols : b*cols+n]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		for j := 0; j < n; j++ {
			od[b*cols+j] = float32(math.Exp(float64(row[j]-maxVal)) / sum)
		}
	}
	t.Record(func() {
		sg, og := scores.Grad(), out.Grad()
		for b := 0; b < r; b++ {
			n := valid[b]
			if n <= 0 {
				continue
			}
			var dot float32
			for j := 0; j < n; j++ {
				dot += og[b*cols+j] * od[b*cols+j]
			}
			for j := 0; j < n; j++ {
				p := od[b*cols+j]
				sg[b*cols+j] += p * (og[b*cols+j] - dot)
			}
		}
	})
	return out
}

// CrossEntropy computes weighted softmax cross-entropy over rows of
// logits [r,C] against integer targets, returning the scalar
// Σ_b weights[b] · nll_b. The caller normalizes by the weight total.
// Panics if a target index is outside [0, C).
func (t *Tape) CrossEntropy(logits *tensor.Tensor, targets []int, weights []float32) *tensor.Tensor {
	r, c := logits.Rows(), logits.Cols()
	if len(targets) != r || len(weights) != r {
		panic(fmt.Sprintf("CrossEntropy: %d targets and %d weights for %d rows", len(targets), len(weights), r))
	}
	probs := make([]float32, r*c)
	ld := logits.Data()
	var total float64
	for b := 0; b < r; b++ {
		tgt := targets[b]
		if tgt < 0 || tgt >= c {
			panic(fmt.Sprintf("CrossEntropy: target %d out of range [0,%d)", tgt, c))
		}
		row := ld[b*c : (b+1)*c]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += math.Exp(float64(v - maxVal))
		}
		logSum := math.Log(sum)
		for j := 0; j < c; j++ {
			probs[b*c+j] = float32(math.Exp(float64(row[j]-maxVal) - logSum))
		}
		nll := logSum - float64(row[tgt]-maxVal)
		total += float64(weights[b]) * nll
	}
	out := tensor.New(tensor.Shape{})
	out.Data()[0] = float32(total)
	targetsCopy := make([]int, r)
	copy(targetsCopy, targets)
	weightsCopy := make([]float32, r)
	copy(weightsCopy, weights)
	t.Record(func() {
		lg := logits.Grad()
		g := out.Grad()[0]
		if g == 0 {
			return
		}
		for b := 0; b < r; b++ {
			w := weightsCopy[b] * g
			if w == 0 {
				continue
			}
			for j := 0; j < c; j++ {
				delta := probs[b*c+j]
				if j == targetsCopy[b] {
					delta -= 1
				}
				lg[b*c+j] += w * delta
			}
		}
	})
	return out
}
